// File: internal/frames/store.go

// Package frames stores captured screenshots on disk and reclaims them after
// a retention window. Files are content-addressed by a random name, so a
// frame URL stays valid until the sweeper removes it.
package frames

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store writes PNG frames under one directory and sweeps out entries older
// than the TTL. It implements session.FrameSink.
type Store struct {
	dir           string
	ttl           time.Duration
	sweepInterval time.Duration
	log           *zap.Logger
}

// NewStore ensures dir exists and returns a store over it.
func NewStore(dir string, ttl, sweepInterval time.Duration, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating frames dir %q: %w", dir, err)
	}
	return &Store{
		dir:           dir,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		log:           logger.Named("frames"),
	}, nil
}

// Save writes png under a fresh random name and returns that name.
func (s *Store) Save(png []byte) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), png, 0o644); err != nil {
		return "", fmt.Errorf("writing frame: %w", err)
	}
	return name, nil
}

// Path resolves a stored frame name to its on-disk path. Names that escape
// the store directory are rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid frame name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Sweep removes frames whose modification time is older than the TTL,
// reporting how many were unlinked. A zero TTL disables reclamation.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("Frame sweep could not read directory.", zap.Error(err))
		return 0
	}

	cutoff := now.Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed
}

// Run sweeps on a fixed cadence until ctx is canceled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(time.Now()); removed > 0 {
				s.log.Debug("Swept expired frames.", zap.Int("removed", removed))
			}
		}
	}
}
