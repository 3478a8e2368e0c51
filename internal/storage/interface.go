// Package storage keeps uploaded workbooks until an import worker picks
// them up.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.ReadSeeker) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectKey builds a unique key for an uploaded workbook, grouped by upload
// day. The original file extension is kept.
func ObjectKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".xlsx"
	}
	name := fmt.Sprintf("imports/%s/%s%s", now.UTC().Format("2006/01/02"), uuid.NewString(), ext)
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
