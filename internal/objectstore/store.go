// Package objectstore keeps captured photos on the local filesystem and
// serves them under a public base URL.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyData   = errors.New("objectstore: empty data")
	ErrInvalidPath = errors.New("objectstore: invalid object path")
)

// FS stores objects under Root. Public URLs are BaseURL + "/" + object path.
type FS struct {
	root    string
	baseURL string
}

// NewFS creates the root directory if needed.
func NewFS(root, baseURL string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating object root: %w", err)
	}
	return &FS{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload writes data at objectPath and returns its public URL. Existing
// objects are overwritten.
func (s *FS) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyData
	}
	clean, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publishing object: %w", err)
	}

	return s.URL(clean), nil
}

// URL returns the public URL of an object path.
func (s *FS) URL(objectPath string) string {
	return s.baseURL + "/" + strings.TrimLeft(objectPath, "/")
}

// Handler serves stored objects. Mount it with the base URL path stripped.
func (s *FS) Handler() http.Handler {
	return http.FileServer(dotFileHidingFS{http.Dir(s.root)})
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.Contains(p, "\\") || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || seg == "" || strings.HasPrefix(seg, ".") {
			return "", ErrInvalidPath
		}
	}
	return path.Clean(p), nil
}

// dotFileHidingFS keeps in-progress temp files out of the file server.
type dotFileHidingFS struct {
	http.FileSystem
}

func (fs dotFileHidingFS) Open(name string) (http.File, error) {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return nil, os.ErrNotExist
		}
	}
	return fs.FileSystem.Open(name)
}
