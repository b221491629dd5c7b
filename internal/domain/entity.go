// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Pasteboard content type tags. These follow the macOS UTI naming so that
// entries captured by the native pasteboard read back with stable tags.
const (
	TypeURL       = "public.url"
	TypeFileURL   = "public.file-url"
	TypeRTF       = "public.rtf"
	TypePlainText = "public.utf8-plain-text"
	TypePDF       = "com.adobe.pdf"
	TypePNG       = "public.png"
	TypeTIFF      = "public.tiff"
)

// TypePriority is the resolution order when multiple representations are on
// the pasteboard at once. Earlier entries win.
var TypePriority = []string{
	TypeURL,
	TypeFileURL,
	TypeRTF,
	TypePlainText,
	TypePDF,
	TypePNG,
	TypeTIFF,
}

// Entry is one clipboard snapshot. Content is the dedup key: no two live
// entries share the same content. For binary pasteboard types Content holds
// a size-annotated placeholder, never raw bytes.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchFilter narrows history queries. Zero values mean "no constraint".
// Type supports the aliases "url" (any url-ish type) and "text"/"textual"
// (plain text and RTF); anything else is matched exactly.
type SearchFilter struct {
	Type  string
	Query string
	Start time.Time
	End   time.Time
	// Limit <= 0 means unlimited. Offset is only honored together with a
	// positive Limit; the HTTP layer rejects offset-without-limit outright.
	Limit  int
	Offset int
}

// DeleteResult reports a bulk deletion. Both counts come from the same
// transaction, so they are mutually consistent even under concurrent writes.
type DeleteResult struct {
	Deleted   int64 `json:"deletedCount"`
	Remaining int64 `json:"remainingCount"`
}

// UpsertResult reports whether an upsert inserted a new row or only
// refreshed the timestamp of an existing one.
type UpsertResult struct {
	IsNew bool
}

// PrivateStatus is a point-in-time view of the private mode state machine.
type PrivateStatus struct {
	Monitoring  bool
	TimerActive bool
	// ResumeAt is the scheduled auto-resume time; zero when no timer is armed.
	ResumeAt time.Time
	// Remaining is ResumeAt minus now, clamped to zero.
	Remaining time.Duration
}

// DaemonInfo is the persisted record of a running kopya daemon, used by the
// status command for liveness checks.
type DaemonInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	HTTPAddr  string    `json:"http_addr"`
	Version   string    `json:"version"`
}
