package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/logger"
)

// LocalStore keeps objects on disk at {root}/{namespace}/{name}.
type LocalStore struct {
	root string
	log  *logger.Logger
}

func NewLocalStore(root string, log *logger.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local store root is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	for _, ns := range []models.Namespace{models.NamespaceRaw, models.NamespaceDirty, models.NamespaceClean} {
		if err := os.MkdirAll(filepath.Join(root, string(ns)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", ns, err)
		}
	}
	return &LocalStore{root: root, log: log.With("component", "objectstore.local", "root", root)}, nil
}

func (s *LocalStore) path(ns models.Namespace, name string) string {
	return filepath.Join(s.root, string(ns), filepath.Base(name))
}

// Put overwrites any existing object with the same name.
func (s *LocalStore) Put(ctx context.Context, ns models.Namespace, name string, data []byte) error {
	if err := checkKey(ns, name); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyContent
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.path(ns, name)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", ns, name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s/%s: %w", ns, name, err)
	}
	s.log.Debug("stored object", "namespace", ns, "name", name, "bytes", len(data))
	return nil
}

func (s *LocalStore) Get(ctx context.Context, ns models.Namespace, name string) ([]byte, error) {
	if err := checkKey(ns, name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(ns, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", ns, name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", ns, name, err)
	}
	return data, nil
}

func (s *LocalStore) GetText(ctx context.Context, ns models.Namespace, name string) (string, error) {
	return getText(ctx, s.Get, ns, name)
}

func (s *LocalStore) List(ctx context.Context, ns models.Namespace) (map[string][]string, error) {
	if !ns.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, string(ns)))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", ns, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		names = append(names, e.Name())
	}
	return groupByDate(names), nil
}
