//go:build !darwin

package infra

import (
	"errors"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

var errUnsupported = errors.New("pasteboard: unavailable on this platform")

// StubPasteboard is the non-darwin placeholder. The daemon still serves the
// HTTP API; only live capture is unavailable.
type StubPasteboard struct{}

// NewPasteboard creates the platform pasteboard reader.
func NewPasteboard() domain.Pasteboard {
	return &StubPasteboard{}
}

func (s *StubPasteboard) ChangeCount() (uint64, error)              { return 0, errUnsupported }
func (s *StubPasteboard) Types() ([]string, error)                  { return nil, errUnsupported }
func (s *StubPasteboard) ReadString(string) (string, bool, error)   { return "", false, errUnsupported }
func (s *StubPasteboard) DataSize(string) (int, error)              { return 0, errUnsupported }

var _ domain.Pasteboard = (*StubPasteboard)(nil)
