// Package core defines the contracts shared by the artifact archive
// backends. Batch reports and findings are written once under hierarchical
// keys (batches/<batch>/<run>/...) and never overwritten; the create-only
// Put is what makes the archive safe to use as an audit trail.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Store is the archive contract the service layer depends on. Put is
// create-only: writing an existing key fails with ErrExists.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// Driver names a concrete archive backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory, the default
	DriverS3         Driver = "s3"     // S3 or MinIO compatible
	DriverMemory     Driver = "memory" // process memory, tests only
)

// PutOptions carries the optional write parameters.
type PutOptions struct {
	// ContentType is the MIME type recorded with the artifact.
	ContentType string
	// Metadata is a small flat key-value bag stored alongside the payload.
	Metadata map[string]string
}

// SignedURLOptions tunes PresignURL. Only GET is supported by the current
// backends; a zero Expiry means 15 minutes.
type SignedURLOptions struct {
	Method string
	Expiry time.Duration
}

// Info describes an archived artifact.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

var (
	// ErrUnsupported is returned for capabilities a backend does not offer.
	ErrUnsupported = errors.New("blob: unsupported operation")
	// ErrExists is returned by Put when the key is already archived.
	ErrExists = errors.New("blob: key already archived")
	// ErrNotFound is returned when no artifact is stored under the key.
	ErrNotFound = errors.New("blob: key not found")
)

// ValidateKey normalizes an archive key and rejects anything that could
// escape a backend's namespace: empty keys, absolute paths, and parent
// traversal. All backends validate through this one function so a key
// accepted by the memory driver in tests is accepted by fs and s3 too.
func ValidateKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("blob: empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob: absolute key %q", key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("blob: key %q escapes the archive root", key)
	}
	return clean, nil
}

// CloneMetadata copies a metadata bag so callers and backends never share
// one map. A nil input stays nil.
func CloneMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
