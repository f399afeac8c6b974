// Package storage is the blob store for task attachments. Blobs are
// addressed by a storage-relative path; resolving a path to a public
// URL is the only way clients ever see one.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrBlobNotFound is returned by Delete when the path has no blob.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists attachment content separately from the database.
type BlobStore interface {
	// Put stores the content of r under a new opaque path. name is the
	// client-supplied filename; only its extension survives.
	Put(name string, r io.Reader) (path string, err error)
	// URL resolves a stored path to a public URL.
	URL(path string) string
	// Delete removes the blob at path. Deleting a missing blob returns
	// ErrBlobNotFound.
	Delete(path string) error
}

// DiskStore keeps blobs under a root directory and serves them from a
// public URL prefix via the router's static file handler.
type DiskStore struct {
	root      string
	publicURL string
}

// NewDiskStore creates the attachments directory under root if needed.
func NewDiskStore(root, publicURL string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "attachments"), 0o755); err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	return &DiskStore{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root returns the store's base directory, for wiring the static route.
func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) Put(name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	rel := "attachments/" + uuid.NewString() + ext

	f, err := os.Create(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	return rel, nil
}

func (s *DiskStore) URL(path string) string {
	return s.publicURL + "/" + strings.TrimLeft(path, "/")
}

func (s *DiskStore) Delete(path string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(path)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
