// Package memory keeps archived artifacts in process memory. It backs tests
// and ephemeral runs where durability does not matter.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"safegraph/internal/blob/core"
)

// Store implements core.Store over a map. All reads hand out copies so a
// caller mutating a payload or metadata bag cannot corrupt the archive.
type Store struct {
	mu       sync.RWMutex
	archived map[string]artifact
}

type artifact struct {
	payload []byte
	info    core.Info
}

// New returns an empty in-memory archive.
func New() *Store {
	return &Store{archived: make(map[string]artifact)}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put archives a new artifact. Existing keys are never overwritten.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, err := core.ValidateKey(key)
	if err != nil {
		return core.Info{}, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.archived[clean]; taken {
		return core.Info{}, fmt.Errorf("%s: %w", clean, core.ErrExists)
	}
	info := core.Info{
		Key:          clean,
		Size:         int64(len(payload)),
		ContentType:  opts.ContentType,
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.archived[clean] = artifact{payload: payload, info: info}
	return s.copyInfo(info), nil
}

// Get returns the artifact metadata and a reader over a payload copy.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	a, ok := s.archived[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	payload := make([]byte, len(a.payload))
	copy(payload, a.payload)
	return s.copyInfo(a.info), io.NopCloser(bytes.NewReader(payload)), nil
}

// Head returns the artifact metadata.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	a, ok := s.archived[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return s.copyInfo(a.info), nil
}

// Delete removes the artifact, reporting whether it was present.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archived[key]; !ok {
		return false, nil
	}
	delete(s.archived, key)
	return true, nil
}

// List returns the artifacts under prefix in ascending key order.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]core.Info, 0, len(s.archived))
	for key, a := range s.archived {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, s.copyInfo(a.info))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL is not available for an in-process archive.
func (s *Store) PresignURL(_ context.Context, _ string, _ core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func (s *Store) copyInfo(info core.Info) core.Info {
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}
