package ui

import (
	"image/color"
	"math"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
)

// SyncMode is the tuner condition the indicator renders.
type SyncMode int

const (
	// SyncOff: tuner stopped.
	SyncOff SyncMode = iota
	// SyncSearching: HD pipeline running, no sync yet.
	SyncSearching
	// SyncHD: digital lock.
	SyncHD
	// SyncAnalog: analog fallback carrying audio.
	SyncAnalog
)

var (
	colorOff    = color.NRGBA{0x80, 0x80, 0x80, 0xFF}
	colorAmber  = color.NRGBA{0xE0, 0xA0, 0x20, 0xFF}
	colorAmberD = color.NRGBA{0x70, 0x50, 0x10, 0xFF}
)

// SyncIndicator is a small circle that breathes green while HD sync holds,
// blinks amber while searching, and sits steady amber in analog mode.
type SyncIndicator struct {
	wrap   *fyne.Container
	circle *canvas.Circle

	mu   sync.Mutex
	mode SyncMode
	gen  int // invalidates the animation goroutine on mode change
}

// NewSyncIndicator constructs a SyncIndicator with the given diameter.
func NewSyncIndicator(diameter float32) *SyncIndicator {
	c := canvas.NewCircle(colorOff)
	c.StrokeColor = color.NRGBA{0, 0, 0, 0}
	inner := container.New(layout.NewGridWrapLayout(fyne.NewSize(diameter, diameter)), c)
	return &SyncIndicator{wrap: container.NewCenter(inner), circle: c}
}

// CanvasObject returns the fyne object suitable for embedding in layouts.
func (s *SyncIndicator) CanvasObject() fyne.CanvasObject { return s.wrap }

// SetMode switches the rendered state.
func (s *SyncIndicator) SetMode(mode SyncMode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	switch mode {
	case SyncHD:
		go s.animate(gen, s.breatheColor)
	case SyncSearching:
		go s.animate(gen, s.blinkColor)
	case SyncAnalog:
		s.setColor(colorAmber)
	default:
		s.setColor(colorOff)
	}
}

func (s *SyncIndicator) alive(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *SyncIndicator) animate(gen int, colorAt func(step int) color.NRGBA) {
	t := time.NewTicker(90 * time.Millisecond)
	defer t.Stop()
	for step := 0; s.alive(gen); step++ {
		<-t.C
		s.setColor(colorAt(step))
	}
}

// breatheColor oscillates brightness through green for the HD lock state.
func (s *SyncIndicator) breatheColor(step int) color.NRGBA {
	v := 0.55 + 0.4*(0.5+0.5*math.Sin(float64(step)*0.25))
	return hsvToNRGBA(130, 0.70, v)
}

// blinkColor alternates two amber tones while searching for sync.
func (s *SyncIndicator) blinkColor(step int) color.NRGBA {
	if step/5%2 == 0 {
		return colorAmber
	}
	return colorAmberD
}

func (s *SyncIndicator) setColor(col color.NRGBA) {
	CallOnMain(func() {
		s.circle.FillColor = col
		s.circle.Refresh()
	})
}

// hsvToNRGBA converts HSV (0..360, 0..1, 0..1) to color.NRGBA.
func hsvToNRGBA(h, s, v float64) color.NRGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60.0, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.NRGBA{
		R: uint8((r+m)*255 + 0.5),
		G: uint8((g+m)*255 + 0.5),
		B: uint8((b+m)*255 + 0.5),
		A: 0xFF,
	}
}
