// Package objectstore persists pipeline artifacts under the raw, dirty and
// clean namespaces.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/xhad/minutemate/internal/models"
)

var (
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrNotFound         = errors.New("object not found")
	ErrEmptyName        = errors.New("object name is empty")
	ErrEmptyContent     = errors.New("object content is empty")
)

func checkKey(ns models.Namespace, name string) error {
	if !ns.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	if name == "" {
		return ErrEmptyName
	}
	return nil
}

// groupByDate buckets names by their YYYY_MM_DD prefix. Names inside a
// bucket are sorted.
func groupByDate(names []string) map[string][]string {
	out := make(map[string][]string)
	for _, n := range names {
		key := models.DateKey(n)
		out[key] = append(out[key], n)
	}
	for _, v := range out {
		sort.Strings(v)
	}
	return out
}

// DecodeText converts stored bytes to UTF-8, detecting the source charset
// from a BOM or the content itself.
func DecodeText(data []byte) (string, error) {
	enc, _, _ := charset.DetermineEncoding(data, "text/plain")
	r := transform.NewReader(bytes.NewReader(data), enc.NewDecoder())
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}
	return string(out), nil
}

// getText is shared by the backends.
func getText(ctx context.Context, get func(context.Context, models.Namespace, string) ([]byte, error), ns models.Namespace, name string) (string, error) {
	data, err := get(ctx, ns, name)
	if err != nil {
		return "", err
	}
	return DecodeText(data)
}
