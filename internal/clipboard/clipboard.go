// Package clipboard copies order summaries to the operator's clipboard.
//
// A Copier tries the platform clipboard first and falls back to an OSC 52
// terminal escape. It reports the outcome as a Notice and never fails.
package clipboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
)

// ErrUnavailable is returned by a Writer that cannot work in this environment.
var ErrUnavailable = errors.New("clipboard unavailable")

// Writer puts text on some clipboard.
type Writer interface {
	WriteText(text string) error
}

// Notice is the user-facing outcome of a copy.
type Notice struct {
	OK      bool
	Message string
}

const (
	MessageCopied = "已複製訂單摘要"
	MessageFailed = "複製失敗，請手動選取文字複製"
)

// Copier writes to Primary and, when that fails, to Fallback.
type Copier struct {
	Primary  Writer
	Fallback Writer
}

// New returns a Copier using the system clipboard with a terminal fallback
// on stdout.
func New() *Copier {
	return &Copier{
		Primary:  SystemClipboard{},
		Fallback: NewTerminalFallback(os.Stdout),
	}
}

// Copy tries each writer in turn.
func (c *Copier) Copy(text string) Notice {
	for _, w := range []Writer{c.Primary, c.Fallback} {
		if w == nil {
			continue
		}
		if err := w.WriteText(text); err == nil {
			return Notice{OK: true, Message: MessageCopied}
		}
	}
	return Notice{OK: false, Message: MessageFailed}
}

// SystemClipboard is the platform clipboard (pbcopy, xclip, wl-copy, Windows API).
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("system clipboard: %w", err)
	}
	return nil
}

// TerminalFallback asks the terminal emulator to set the clipboard with an
// OSC 52 sequence. It only writes when out is a terminal.
type TerminalFallback struct {
	out   io.Writer
	isTTY bool
}

// NewTerminalFallback detects whether f is a terminal.
func NewTerminalFallback(f *os.File) *TerminalFallback {
	fd := f.Fd()
	return &TerminalFallback{
		out:   f,
		isTTY: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// NewTerminalFallbackWriter writes to out without terminal detection.
func NewTerminalFallbackWriter(out io.Writer, isTTY bool) *TerminalFallback {
	return &TerminalFallback{out: out, isTTY: isTTY}
}

func (t *TerminalFallback) WriteText(text string) error {
	if !t.isTTY {
		return ErrUnavailable
	}
	seq := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte(text)) + "\a"
	if _, err := io.WriteString(t.out, seq); err != nil {
		return fmt.Errorf("terminal clipboard: %w", err)
	}
	return nil
}
