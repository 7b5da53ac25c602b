// Package storage persists rendered pages to Google Cloud Storage or a local directory.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

type Client interface {
	SaveBytes(ctx context.Context, bucketName string, objectName string, data []byte) error
}

type gcsClient struct {
	storageClient *storage.Client
}

func New(storageClient *storage.Client) Client {
	return &gcsClient{storageClient: storageClient}
}

func (s *gcsClient) SaveBytes(ctx context.Context, bucketName string, objectName string, data []byte) error {
	writer := s.storageClient.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType(objectName)

	if _, err := writer.Write(data); err != nil {
		// Close reports the write error again; the object is not created.
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucketName, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer for gs://%s/%s: %w", bucketName, objectName, err)
	}
	return nil
}

// Directory stores objects as files below root, one subdirectory per bucket.
type Directory struct {
	root string
}

func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

func (d *Directory) SaveBytes(ctx context.Context, bucketName string, objectName string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.path(bucketName, objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	// Write through a temporary file so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// path resolves an object below the bucket directory, rejecting names that escape it.
func (d *Directory) path(bucketName, objectName string) (string, error) {
	base := filepath.Join(d.root, filepath.FromSlash(bucketName))
	path := filepath.Join(base, filepath.FromSlash(objectName))
	relative, err := filepath.Rel(base, path)
	if err != nil || relative == "." || strings.HasPrefix(relative, "..") {
		return "", fmt.Errorf("invalid object name %q", objectName)
	}
	return path, nil
}

func contentType(objectName string) string {
	switch strings.ToLower(filepath.Ext(objectName)) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
