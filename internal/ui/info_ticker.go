package ui

import (
	"context"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/widget"
)

// TickerItem is one line of the rotating station info display.
type TickerItem struct {
	Text string
	Bold bool // station name
	Dim  bool // supporting detail such as genre or messages
}

// InfoTicker rotates through the station info items, marquee-scrolling any
// item too wide for its viewport. SetItems is safe to call from any goroutine.
type InfoTicker struct {
	lbl    *widget.Label
	parent fyne.CanvasObject // container used to measure visible width
	bind   binding.String

	mu     sync.Mutex
	items  []TickerItem
	index  int
	cancel context.CancelFunc

	// tuning
	rotateEvery time.Duration // dwell per item
	speed       time.Duration // marquee step interval
	padding     string        // spaces padding for cyclic scroll
}

// NewInfoTicker creates a ticker for the given label and measuring parent.
func NewInfoTicker(lbl *widget.Label, parent fyne.CanvasObject) *InfoTicker {
	b := binding.NewString()
	lbl.Bind(b)
	_ = b.Set("Tuning...")
	return &InfoTicker{
		lbl:         lbl,
		parent:      parent,
		bind:        b,
		rotateEvery: 5 * time.Second,
		speed:       120 * time.Millisecond,
		padding:     "   ",
	}
}

// Close stops the rotation goroutine.
func (t *InfoTicker) Close() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
}

// SetItems replaces the rotation set and restarts from the first item. An
// empty set blanks the display.
func (t *InfoTicker) SetItems(items []TickerItem) {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.items = append([]TickerItem(nil), items...)
	t.index = 0
	t.mu.Unlock()

	if len(items) == 0 {
		_ = t.bind.Set("")
		return
	}
	t.showCurrent()
	if len(items) == 1 && !t.currentOverflows() {
		return // static single line, nothing to animate
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	go t.run(ctx)
}

// run advances the rotation and drives the marquee for oversized items.
func (t *InfoTicker) run(ctx context.Context) {
	rotate := time.NewTicker(t.rotateEvery)
	step := time.NewTicker(t.speed)
	defer rotate.Stop()
	defer step.Stop()

	var marquee []rune
	offset := 0
	if t.currentOverflows() {
		marquee = t.marqueeRunes()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-rotate.C:
			t.mu.Lock()
			if len(t.items) == 0 {
				t.mu.Unlock()
				return
			}
			t.index = (t.index + 1) % len(t.items)
			t.mu.Unlock()
			t.showCurrent()
			marquee = nil
			offset = 0
			if t.currentOverflows() {
				marquee = t.marqueeRunes()
			}
		case <-step.C:
			if len(marquee) == 0 {
				continue
			}
			offset = (offset + 1) % len(marquee)
			_ = t.bind.Set(string(marquee[offset:]) + string(marquee[:offset]))
		}
	}
}

func (t *InfoTicker) current() (TickerItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return TickerItem{}, false
	}
	return t.items[t.index%len(t.items)], true
}

func (t *InfoTicker) showCurrent() {
	item, ok := t.current()
	if !ok {
		return
	}
	CallOnMain(func() {
		switch {
		case item.Bold:
			t.lbl.Importance = widget.HighImportance
			t.lbl.TextStyle = fyne.TextStyle{Bold: true}
		case item.Dim:
			t.lbl.Importance = widget.LowImportance
			t.lbl.TextStyle = fyne.TextStyle{}
		default:
			t.lbl.Importance = widget.MediumImportance
			t.lbl.TextStyle = fyne.TextStyle{}
		}
		t.lbl.Refresh()
	})
	_ = t.bind.Set(item.Text)
}

func (t *InfoTicker) currentOverflows() bool {
	item, ok := t.current()
	if !ok {
		return false
	}
	return tickerNeedsScroll(measureLabelTextWidth(t.lbl, item.Text), t.parent.Size().Width)
}

func (t *InfoTicker) marqueeRunes() []rune {
	item, ok := t.current()
	if !ok {
		return nil
	}
	return []rune(t.padding + item.Text + t.padding)
}

// measureLabelTextWidth estimates the width the label would need for the text.
func measureLabelTextWidth(lbl *widget.Label, text string) float32 {
	if lbl == nil {
		return 0
	}
	tmp := widget.NewLabel(text)
	tmp.Alignment = lbl.Alignment
	tmp.TextStyle = lbl.TextStyle
	tmp.Importance = lbl.Importance
	tmp.Wrapping = lbl.Wrapping
	tmp.Truncation = lbl.Truncation
	tmp.Refresh()
	return tmp.MinSize().Width
}
