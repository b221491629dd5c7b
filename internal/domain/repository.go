package domain

import "context"

// HistoryStore is the persistence layer for clipboard entries.
// Implementation: SQLite with optional SQLCipher encryption.
type HistoryStore interface {
	// Upsert inserts the entry, or refreshes the timestamp of the live entry
	// with identical content. Enforces the maxEntries cap by evicting the
	// oldest rows after insert.
	Upsert(ctx context.Context, entry *Entry) (UpsertResult, error)

	// Search returns matching entries ordered by timestamp descending.
	Search(ctx context.Context, filter SearchFilter) ([]Entry, error)

	// Count returns the number of live entries.
	Count(ctx context.Context) (int64, error)

	// DeleteByID removes one entry. Returns false (no error) when absent.
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteAll unconditionally empties the store.
	DeleteAll(ctx context.Context) error

	// DeleteMatching removes entries matching the filter. A positive Limit
	// deletes the most recent matches first, mirroring eviction order.
	DeleteMatching(ctx context.Context, filter SearchFilter) (DeleteResult, error)

	// Close releases the database connection.
	Close() error
}

// Pasteboard abstracts the OS clipboard. The darwin implementation shells
// out to pbpaste/osascript; other platforms get a stub.
type Pasteboard interface {
	// ChangeCount is a monotonic counter that advances whenever the
	// pasteboard contents change.
	ChangeCount() (uint64, error)

	// Types lists the representations currently on the pasteboard, as
	// domain type tags.
	Types() ([]string, error)

	// ReadString extracts a textual rendition for the given type. Returns
	// ok=false when no textual rendition is available.
	ReadString(typ string) (value string, ok bool, err error)

	// DataSize reports the byte size of a binary representation, used for
	// placeholder strings.
	DataSize(typ string) (int, error)
}

// PrivateMode gates the watcher's persistence step.
type PrivateMode interface {
	// IsMonitoring reports whether captured changes should be persisted.
	IsMonitoring() bool

	// Enable suspends monitoring. A parseable timeRange arms auto-resume;
	// anything else leaves the suspension open-ended.
	Enable(timeRange string)

	// Disable resumes monitoring and cancels any pending auto-resume.
	Disable()

	// Status returns the current state snapshot.
	Status() PrivateStatus
}

// ProcessManager handles OS process liveness checks.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Uptime returns how long the process has been running.
	Uptime(pid int) (seconds int64, err error)

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry records the running daemon so the status command can find
// it. Implementation: JSON pidfile in the data directory.
type DaemonRegistry interface {
	Register(info DaemonInfo) error
	Get() (*DaemonInfo, error)
	Clear() error
}

// KeyProvider abstracts the source of the database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// LaunchAgentManager handles macOS LaunchAgent plist operations for
// launch-at-login registration.
type LaunchAgentManager interface {
	Install(execPath string) error
	Uninstall() error
	IsInstalled() bool
	GetPlistPath() string
}
