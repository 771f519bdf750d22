package ui

import (
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// logPaneMaxLines bounds the retained decoder log.
const logPaneMaxLines = 1000

// LogPane is a read-only bounded view of the decoder log. It implements
// io.Writer so it can sit behind the application logger; writes may come from
// any goroutine.
type LogPane struct {
	entry *widget.Entry

	mu      sync.Mutex
	lines   []string
	partial string
}

// NewLogPane builds an empty pane.
func NewLogPane() *LogPane {
	e := widget.NewMultiLineEntry()
	e.Disable()
	e.Wrapping = fyne.TextWrapOff
	e.TextStyle = fyne.TextStyle{Monospace: true}
	return &LogPane{entry: e}
}

// CanvasObject returns the fyne object suitable for embedding in layouts.
func (p *LogPane) CanvasObject() fyne.CanvasObject { return p.entry }

// Append adds one log line, dropping the oldest beyond the cap.
func (p *LogPane) Append(line string) {
	p.mu.Lock()
	p.lines = append(p.lines, line)
	if len(p.lines) > logPaneMaxLines {
		p.lines = p.lines[len(p.lines)-logPaneMaxLines:]
	}
	text := strings.Join(p.lines, "\n")
	p.mu.Unlock()

	CallOnMain(func() {
		p.entry.SetText(text)
		p.entry.CursorRow = strings.Count(text, "\n")
	})
}

// Len returns the retained line count.
func (p *LogPane) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lines)
}

// Write splits incoming bytes into lines for Append, buffering any trailing
// partial line until its newline arrives.
func (p *LogPane) Write(b []byte) (int, error) {
	p.mu.Lock()
	buf := p.partial + string(b)
	p.mu.Unlock()

	lines, rest := splitLogLines(buf)
	for _, line := range lines {
		p.Append(line)
	}
	p.mu.Lock()
	p.partial = rest
	p.mu.Unlock()
	return len(b), nil
}

// splitLogLines separates complete lines from a trailing partial one,
// dropping CR and empty lines.
func splitLogLines(buf string) (lines []string, rest string) {
	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			return lines, buf
		}
		line := strings.TrimRight(buf[:i], "\r")
		buf = buf[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
}
