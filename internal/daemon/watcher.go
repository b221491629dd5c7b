// Package daemon implements the clipboard polling loop and the periodic
// snapshot scheduler.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
	"github.com/jesse-c/kopya-sub000/internal/filter"
)

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	PollInterval   time.Duration // How often to poll the pasteboard (default 500ms)
	BackupInterval time.Duration // How often to snapshot the store (0 disables)
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval:   500 * time.Millisecond,
		BackupInterval: 6 * time.Hour,
	}
}

// Snapshotter is the periodic backup hook the watcher drives.
type Snapshotter interface {
	Snapshot() (string, error)
}

// Watcher is the clipboard polling daemon. Each tick it checks the
// pasteboard change counter, resolves the highest-priority representation,
// extracts a string for it, and persists accepted content to the history
// store. lastContent and lastChangeCount are owned exclusively by the loop
// goroutine.
type Watcher struct {
	config      WatcherConfig
	pasteboard  domain.Pasteboard
	store       domain.HistoryStore
	privateMode domain.PrivateMode
	filter      *filter.ContentFilter
	snapshotter Snapshotter
	logger      *zap.Logger

	lastChangeCount uint64
	lastContent     string
	primed          bool
}

// NewWatcher creates a new clipboard watcher.
func NewWatcher(
	config WatcherConfig,
	pb domain.Pasteboard,
	store domain.HistoryStore,
	pm domain.PrivateMode,
	cf *filter.ContentFilter,
	snapshotter Snapshotter,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:      config,
		pasteboard:  pb,
		store:       store,
		privateMode: pm,
		filter:      cf,
		snapshotter: snapshotter,
		logger:      logger,
	}
}

// Run starts the watcher loop. This blocks until context is canceled.
// A single failed tick never terminates the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("clipboard watcher started",
		zap.Duration("poll_interval", w.config.PollInterval))

	pollTicker := time.NewTicker(w.config.PollInterval)
	defer pollTicker.Stop()

	var backupC <-chan time.Time
	if w.snapshotter != nil && w.config.BackupInterval > 0 {
		backupTicker := time.NewTicker(w.config.BackupInterval)
		defer backupTicker.Stop()
		backupC = backupTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("clipboard watcher stopping")
			return ctx.Err()

		case <-pollTicker.C:
			w.tick(ctx)

		case <-backupC:
			if _, err := w.snapshotter.Snapshot(); err != nil {
				w.logger.Error("history snapshot failed", zap.Error(err))
			}
		}
	}
}

// tick performs one poll of the pasteboard.
func (w *Watcher) tick(ctx context.Context) {
	count, err := w.pasteboard.ChangeCount()
	if err != nil {
		// Pasteboard unavailable this tick; try again next time.
		w.logger.Debug("pasteboard read failed", zap.Error(err))
		return
	}

	if w.primed && count == w.lastChangeCount {
		return
	}
	w.lastChangeCount = count
	w.primed = true

	typ, content, ok := w.extract()
	if !ok {
		// No recognized representation on the pasteboard; not an error.
		return
	}

	// The change counter can bump without a real content change (e.g. an
	// app rewriting identical data). Suppress those.
	if content == w.lastContent {
		return
	}
	w.lastContent = content

	if !w.privateMode.IsMonitoring() {
		// Still tracked as last content above, so resuming monitoring does
		// not re-trigger on stale pasteboard state.
		w.logger.Debug("private mode active, skipping capture")
		return
	}

	if w.filter.ShouldFilter(content) {
		w.logger.Info("content matched filter pattern, dropped",
			zap.String("type", typ))
		return
	}

	entry := &domain.Entry{Content: content, Type: typ, Timestamp: time.Now()}
	res, err := w.store.Upsert(ctx, entry)
	if err != nil {
		w.logger.Error("failed to save clipboard entry", zap.Error(err))
		return
	}

	w.logger.Info("stored clipboard entry",
		zap.String("id", entry.ID),
		zap.String("type", typ),
		zap.Bool("is_new", res.IsNew),
		zap.Int("content_length", len(content)))
}

// extract resolves the highest-priority representation and renders it as a
// string. Binary types always come back as size-annotated placeholders.
func (w *Watcher) extract() (typ, content string, ok bool) {
	types, err := w.pasteboard.Types()
	if err != nil || len(types) == 0 {
		return "", "", false
	}

	typ, ok = highestPriority(types)
	if !ok {
		return "", "", false
	}

	switch typ {
	case domain.TypePlainText, domain.TypeURL, domain.TypeFileURL:
		value, found, err := w.pasteboard.ReadString(typ)
		if err != nil || !found || value == "" {
			return "", "", false
		}
		return typ, value, true

	case domain.TypeRTF:
		if value, found, err := w.pasteboard.ReadString(typ); err == nil && found && value != "" {
			return typ, value, true
		}
		return typ, w.placeholder(typ, "rtf content"), true

	case domain.TypePDF:
		return typ, w.placeholder(typ, "pdf data"), true
	case domain.TypePNG:
		return typ, w.placeholder(typ, "png data"), true
	case domain.TypeTIFF:
		return typ, w.placeholder(typ, "tiff data"), true
	}

	return "", "", false
}

// placeholder builds the descriptive stand-in stored for binary payloads.
func (w *Watcher) placeholder(typ, label string) string {
	size, err := w.pasteboard.DataSize(typ)
	if err != nil {
		size = 0
	}
	return fmt.Sprintf("<%s: %d bytes>", label, size)
}

// highestPriority picks the first tag from the fixed priority order that is
// present on the pasteboard.
func highestPriority(available []string) (string, bool) {
	present := make(map[string]bool, len(available))
	for _, t := range available {
		present[t] = true
	}
	for _, t := range domain.TypePriority {
		if present[t] {
			return t, true
		}
	}
	return "", false
}
