//go:build darwin

package infra

import (
	"bytes"
	"hash/fnv"
	"os/exec"
	"strings"
	"sync"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

// commandRunner abstracts subprocess execution so tests can stub the
// pasteboard tools.
type commandRunner func(name string, args ...string) (string, error)

func runCommand(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// DarwinPasteboard reads the macOS pasteboard through pbpaste and osascript.
// NSPasteboard's native changeCount is not reachable without cgo, so the
// change counter is emulated: a digest of the pasteboard state is taken per
// call and the counter advances whenever the digest differs. This preserves
// the skip-unchanged contract the watcher depends on.
type DarwinPasteboard struct {
	run commandRunner

	mu         sync.Mutex
	counter    uint64
	lastDigest uint64
}

// NewPasteboard creates the platform pasteboard reader.
func NewPasteboard() domain.Pasteboard {
	return &DarwinPasteboard{run: runCommand}
}

// ChangeCount returns the emulated change counter.
func (p *DarwinPasteboard) ChangeCount() (uint64, error) {
	info, err := p.run("osascript", "-e", "clipboard info")
	if err != nil {
		return 0, err
	}
	// Include the text rendition so same-shaped contents still bump the
	// counter when the text itself changed.
	text, _ := p.run("pbpaste", "-Prefer", "txt")

	h := fnv.New64a()
	h.Write([]byte(info))
	h.Write([]byte{0})
	h.Write([]byte(text))
	digest := h.Sum64()

	p.mu.Lock()
	defer p.mu.Unlock()
	if digest != p.lastDigest {
		p.lastDigest = digest
		p.counter++
	}
	return p.counter, nil
}

// Types lists the representations currently on the pasteboard.
func (p *DarwinPasteboard) Types() ([]string, error) {
	sizes, err := p.readSizes()
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(sizes))
	for _, t := range domain.TypePriority {
		if _, ok := sizes[t]; ok {
			types = append(types, t)
		}
	}
	return types, nil
}

// ReadString extracts a textual rendition for the given type.
func (p *DarwinPasteboard) ReadString(typ string) (string, bool, error) {
	switch typ {
	case domain.TypePlainText:
		text, err := p.run("pbpaste", "-Prefer", "txt")
		if err != nil {
			return "", false, err
		}
		return strings.TrimRight(text, "\n"), true, nil

	case domain.TypeURL:
		if v, err := p.run("osascript", "-e", `the clipboard as «class url »`); err == nil {
			if u := strings.TrimSpace(v); u != "" {
				return u, true, nil
			}
		}
		// Fall back to scanning the plain-text rendition for an http URL.
		text, err := p.run("pbpaste", "-Prefer", "txt")
		if err != nil {
			return "", false, err
		}
		if u := strings.TrimSpace(text); strings.HasPrefix(u, "http") {
			return u, true, nil
		}
		return "", false, nil

	case domain.TypeFileURL:
		v, err := p.run("osascript", "-e", `POSIX path of (the clipboard as «class furl»)`)
		if err != nil {
			return "", false, nil
		}
		path := strings.TrimSpace(v)
		if path == "" {
			return "", false, nil
		}
		return "file://" + path, true, nil

	case domain.TypeRTF:
		// RTF usually carries a plain-text rendition alongside.
		text, err := p.run("pbpaste", "-Prefer", "txt")
		if err != nil {
			return "", false, err
		}
		trimmed := strings.TrimRight(text, "\n")
		if trimmed == "" {
			return "", false, nil
		}
		return trimmed, true, nil
	}

	// Binary types have no textual rendition.
	return "", false, nil
}

// DataSize reports the byte size of a representation.
func (p *DarwinPasteboard) DataSize(typ string) (int, error) {
	sizes, err := p.readSizes()
	if err != nil {
		return 0, err
	}
	return sizes[typ], nil
}

func (p *DarwinPasteboard) readSizes() (map[string]int, error) {
	info, err := p.run("osascript", "-e", "clipboard info")
	if err != nil {
		return nil, err
	}
	return parseClipboardInfo(info), nil
}

// Ensure DarwinPasteboard implements domain.Pasteboard.
var _ domain.Pasteboard = (*DarwinPasteboard)(nil)
