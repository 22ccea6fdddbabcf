package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Object describes a stored blob the way clients receive it.
type Object struct {
	URL                string `json:"url"`
	Pathname           string `json:"pathname"`
	ContentType        string `json:"contentType"`
	ContentDisposition string `json:"contentDisposition"`
	Size               int64  `json:"size"`
}

// Store persists uploaded bytes with public read access.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (*Object, error)
}

// LocalStore writes blobs under dir and serves them below baseURL + "/files/".
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("upload dir must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory that should be exposed under /files.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put stores data under a random prefix so equal names never collide.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := sanitizeName(name)
	pathname := uuid.NewString() + "-" + clean
	if err := os.WriteFile(filepath.Join(s.dir, pathname), data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	return &Object{
		URL:                s.baseURL + path.Join("/files", pathname),
		Pathname:           pathname,
		ContentType:        DetectContentType(data),
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", clean),
		Size:               int64(len(data)),
	}, nil
}

// DetectContentType sniffs the MIME type from content, ignoring any
// client-declared type.
func DetectContentType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "file"
	}
	return base
}
