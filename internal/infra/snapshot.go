package infra

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const snapshotTimeLayout = "20060102-150405"

// SnapshotManager writes timestamped whole-file copies of the history
// database into a sibling directory and prunes old snapshots beyond the
// retention count.
type SnapshotManager struct {
	dbPath    string
	dir       string
	retention int
	logger    *zap.Logger
}

// NewSnapshotManager creates a snapshot manager. retention is the number of
// snapshots kept after pruning; values below 1 are clamped to 1.
func NewSnapshotManager(dbPath, dir string, retention int, logger *zap.Logger) *SnapshotManager {
	if retention < 1 {
		retention = 1
	}
	return &SnapshotManager{
		dbPath:    dbPath,
		dir:       dir,
		retention: retention,
		logger:    logger,
	}
}

// Snapshot copies the database to a timestamped file and prunes old
// snapshots. Returns the path of the new snapshot.
func (m *SnapshotManager) Snapshot() (string, error) {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := fmt.Sprintf("history-%s.db", time.Now().UTC().Format(snapshotTimeLayout))
	dst := filepath.Join(m.dir, name)

	if err := copyFileAtomic(m.dbPath, dst); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	m.logger.Info("wrote history snapshot", zap.String("path", dst))

	if err := m.Prune(); err != nil {
		// A failed prune never invalidates the snapshot that was just taken.
		m.logger.Warn("snapshot pruning failed", zap.Error(err))
	}

	return dst, nil
}

// List returns existing snapshot paths, oldest first.
func (m *SnapshotManager) List() ([]string, error) {
	dirents, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		if strings.HasPrefix(name, "history-") && strings.HasSuffix(name, ".db") {
			paths = append(paths, filepath.Join(m.dir, name))
		}
	}

	// Timestamped names sort chronologically.
	sort.Strings(paths)
	return paths, nil
}

// Prune deletes the oldest snapshots beyond the retention count.
func (m *SnapshotManager) Prune() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	if len(paths) <= m.retention {
		return nil
	}

	for _, p := range paths[:len(paths)-m.retention] {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove old snapshot %s: %w", p, err)
		}
		m.logger.Info("pruned old snapshot", zap.String("path", p))
	}
	return nil
}

// copyFileAtomic copies a file from src to dst using atomic write pattern.
// Writes to temp file first, syncs, then renames to avoid torn snapshots.
func copyFileAtomic(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	dstDir := filepath.Dir(dst)
	tmpFile, err := os.CreateTemp(dstDir, ".kopya-snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmpFile, sourceFile); err != nil {
		tmpFile.Close()
		return err
	}

	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err = os.Chmod(tmpPath, 0600); err != nil {
		return err
	}

	if err = os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}
