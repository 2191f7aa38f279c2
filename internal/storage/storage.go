// Package storage persists uploaded product images and returns their public URLs.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

type ImageStore interface {
	// Upload stores the content under a fresh object name derived from
	// filename and returns the URL clients use to fetch it.
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// objectName builds "<prefix>/<uuid><ext>" so uploads never overwrite each other.
func objectName(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	name := uuid.NewString() + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
