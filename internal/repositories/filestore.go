package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Area is a top-level region of the file store.
type Area string

const (
	AreaUploads Area = "uploads"
	AreaSigned  Area = "signed"
)

const tempDir = "temp"

// FileStore holds original and signed PDFs. Paths it returns are opaque references
// that are persisted on the Document record and handed back to Open/Remove.
// Missing files are reported with errors wrapping fs.ErrNotExist.
type FileStore interface {
	// Stage writes r to a temporary location outside the canonical areas.
	Stage(ctx context.Context, r io.Reader) (string, error)
	Discard(ctx context.Context, staged string) error
	Exists(ctx context.Context, area Area, name string) (bool, error)
	// Promote moves a staged file to area/name and returns its path.
	Promote(ctx context.Context, staged string, area Area, name string) (string, error)
	// Put writes data to area/name, replacing any existing file.
	Put(ctx context.Context, area Area, name string, data []byte) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}

// LocalStore lays files out as <root>/uploads and <root>/signed, staging under
// <root>/temp so no upload name can collide with the staging directory.
type LocalStore struct {
	root string
}

var _ FileStore = (*LocalStore)(nil)

func NewLocalStore(root string) (*LocalStore, error) {
	for _, dir := range []string{
		filepath.Join(root, string(AreaUploads)),
		filepath.Join(root, string(AreaSigned)),
		filepath.Join(root, tempDir),
	} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(area Area, name string) string {
	return filepath.Join(s.root, string(area), name)
}

func (s *LocalStore) Stage(ctx context.Context, r io.Reader) (string, error) {
	staged := filepath.Join(s.root, tempDir, uuid.NewString())
	f, err := os.OpenFile(staged, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(staged)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return staged, nil
}

func (s *LocalStore) Discard(_ context.Context, staged string) error {
	return s.remove(staged)
}

func (s *LocalStore) Exists(_ context.Context, area Area, name string) (bool, error) {
	_, err := os.Stat(s.path(area, name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *LocalStore) Promote(_ context.Context, staged string, area Area, name string) (string, error) {
	dst := s.path(area, name)
	if err := os.Rename(staged, dst); err != nil {
		return "", fmt.Errorf("move %s: %w", name, err)
	}
	return dst, nil
}

func (s *LocalStore) Put(_ context.Context, area Area, name string, data []byte) (string, error) {
	dst := s.path(area, name)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move %s: %w", name, err)
	}
	return dst, nil
}

func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Remove(_ context.Context, path string) error {
	return s.remove(path)
}

func (s *LocalStore) remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ctxReader stops a copy once the request context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
