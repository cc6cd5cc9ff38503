// Package backup keeps a rolling set of point-in-time copies of the
// decision log database.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "warden-"
	fileSuffix = ".duckdb"
)

// Snapshotter writes a self-contained copy of the store to a new file.
type Snapshotter interface {
	SnapshotTo(dstPath string) error
}

// Config controls periodic backups. A zero Interval or KeepLast takes the
// default.
type Config struct {
	Dir      string
	Interval time.Duration
	KeepLast int
}

// Manager writes a snapshot on start and then every Interval, pruning all
// but the newest KeepLast files in Dir.
type Manager struct {
	store Snapshotter
	cfg   Config
	now   func() time.Time
}

// NewManager validates cfg and prepares Dir.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("backup: nil snapshotter")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("backup: backup-dir is required when backups are enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create backup-dir: %w", err)
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}, nil
}

// Run snapshots immediately and then on every tick until ctx is done.
// Failed snapshots are logged; the loop keeps going.
func (m *Manager) Run(ctx context.Context) error {
	if _, err := m.RunOnce(); err != nil {
		zap.S().Warnf("backup: startup snapshot failed: %v", err)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.RunOnce(); err != nil {
				zap.S().Warnf("backup: periodic snapshot failed: %v", err)
			}
		}
	}
}

// RunOnce writes one snapshot and prunes old ones. It returns the path written.
func (m *Manager) RunOnce() (string, error) {
	name := filePrefix + m.now().UTC().Format("20060102-150405.000") + fileSuffix
	path := filepath.Join(m.cfg.Dir, name)

	if err := m.store.SnapshotTo(path); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	zap.S().Infof("backup: created snapshot %s", path)

	if err := prune(m.cfg.Dir, m.cfg.KeepLast); err != nil {
		return path, fmt.Errorf("prune backups: %w", err)
	}
	return path, nil
}

// List returns the snapshot files in dir, newest first.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	// The timestamp in the name sorts lexically in time order.
	slices.Sort(matches)
	slices.Reverse(matches)
	return matches, nil
}

func prune(dir string, keepLast int) error {
	matches, err := List(dir)
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}
	for _, old := range matches[keepLast:] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
