package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/gcp"
	"github.com/xhad/minutemate/pkg/logger"
)

type GCSConfig struct {
	Bucket    string
	ProjectID string
	Timeout   time.Duration
}

// GCSStore keeps objects in a single bucket under {namespace}/{name}.
type GCSStore struct {
	config GCSConfig
	client *storage.Client
	log    *logger.Logger
}

// NewGCSStore connects to Cloud Storage, or to the emulator when
// STORAGE_EMULATOR_HOST is set.
func NewGCSStore(ctx context.Context, config GCSConfig, log *logger.Logger) (*GCSStore, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}

	var opts []option.ClientOption
	if host := gcp.EmulatorHost(); host != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(gcp.ClientOptionsFromEnv(config.ProjectID), option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	log = log.With("component", "objectstore.gcs", "bucket", config.Bucket)
	log.Info("object storage initialized", "emulator_host", gcp.EmulatorHost())

	return &GCSStore{config: config, client: client, log: log}, nil
}

func objectKey(ns models.Namespace, name string) string {
	return string(ns) + "/" + name
}

// URI returns the gs:// address of an object, for services that read the
// bucket directly.
func (s *GCSStore) URI(ns models.Namespace, name string) string {
	return "gs://" + s.config.Bucket + "/" + objectKey(ns, name)
}

func (s *GCSStore) Put(ctx context.Context, ns models.Namespace, name string, data []byte) error {
	if err := checkKey(ns, name); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyContent
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	w := s.client.Bucket(s.config.Bucket).Object(objectKey(ns, name)).NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.ContentType = ct
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.log.Debug("stored object", "namespace", ns, "name", name, "bytes", len(data))
	return nil
}

func (s *GCSStore) Get(ctx context.Context, ns models.Namespace, name string) ([]byte, error) {
	if err := checkKey(ns, name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	r, err := s.client.Bucket(s.config.Bucket).Object(objectKey(ns, name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", ns, name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s/%s: %w", ns, name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", ns, name, err)
	}
	return data, nil
}

func (s *GCSStore) GetText(ctx context.Context, ns models.Namespace, name string) (string, error) {
	return getText(ctx, s.Get, ns, name)
}

func (s *GCSStore) List(ctx context.Context, ns models.Namespace) (map[string][]string, error) {
	if !ns.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	prefix := string(ns) + "/"
	it := s.client.Bucket(s.config.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", ns, err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return groupByDate(names), nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
