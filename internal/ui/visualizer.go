package ui

import (
	"context"
	"image/color"
	"math/rand"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

const (
	visualizerBars = 16
	// barJitter bounds the per-frame random walk of a bar height.
	barJitter = 0.18
	// barFloor keeps stopped bars visible as a thin baseline.
	barFloor = 0.04
	// peakDecay is how much a peak marker falls per frame.
	peakDecay = 0.015
	// frameInterval drives the animation.
	frameInterval = 60 * time.Millisecond
)

// Visualizer is the fallback art-panel animation: a row of random-walk bars
// with slowly falling peak-hold markers. It stands in whenever no album art
// or logo is available, which is a normal state and not an error.
type Visualizer struct {
	wrap  *fyne.Container
	bars  []*canvas.Rectangle
	peaks []*canvas.Rectangle

	mu      sync.Mutex
	heights []float64
	tops    []float64
	cancel  context.CancelFunc
	rng     *rand.Rand
}

// NewVisualizer builds a stopped visualizer.
func NewVisualizer() *Visualizer {
	v := &Visualizer{
		heights: make([]float64, visualizerBars),
		tops:    make([]float64, visualizerBars),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	objs := make([]fyne.CanvasObject, 0, visualizerBars*2)
	for i := 0; i < visualizerBars; i++ {
		bar := canvas.NewRectangle(hsvToNRGBA(130+float64(i)*4, 0.6, 0.8))
		peak := canvas.NewRectangle(color.NRGBA{0xE0, 0xE0, 0xE0, 0xFF})
		v.bars = append(v.bars, bar)
		v.peaks = append(v.peaks, peak)
		objs = append(objs, bar, peak)
		v.heights[i] = barFloor
	}
	v.wrap = container.New(&barsLayout{v: v}, objs...)
	return v
}

// CanvasObject returns the fyne object suitable for embedding in layouts.
func (v *Visualizer) CanvasObject() fyne.CanvasObject { return v.wrap }

// Start begins the animation; a second Start is a no-op.
func (v *Visualizer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	go v.animate(ctx)
}

// Stop freezes the bars at the baseline.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	for i := range v.heights {
		v.heights[i] = barFloor
		v.tops[i] = barFloor
	}
	v.mu.Unlock()
	CallOnMain(v.wrap.Refresh)
}

func (v *Visualizer) animate(ctx context.Context) {
	t := time.NewTicker(frameInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			v.mu.Lock()
			stepBars(v.heights, v.tops, v.rng)
			v.mu.Unlock()
			CallOnMain(v.wrap.Refresh)
		}
	}
}

// stepBars advances the bar heights one frame: each bar takes a bounded
// random step, and every peak marker decays but never drops below its bar.
func stepBars(heights, tops []float64, rng *rand.Rand) {
	for i := range heights {
		heights[i] = clampFloat64(heights[i]+(rng.Float64()*2-1)*barJitter, barFloor, 1)
		tops[i] -= peakDecay
		if tops[i] < heights[i] {
			tops[i] = heights[i]
		}
	}
}

// barsLayout bottom-aligns each bar inside an equal-width column and floats
// the peak marker above it.
type barsLayout struct {
	v *Visualizer
}

func (l *barsLayout) MinSize([]fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(160, 90)
}

func (l *barsLayout) Layout(_ []fyne.CanvasObject, size fyne.Size) {
	v := l.v
	v.mu.Lock()
	defer v.mu.Unlock()

	colW := size.Width / float32(visualizerBars)
	barW := colW * 0.7
	for i := range v.bars {
		x := float32(i)*colW + (colW-barW)/2
		h := float32(v.heights[i]) * size.Height
		v.bars[i].Move(fyne.NewPos(x, size.Height-h))
		v.bars[i].Resize(fyne.NewSize(barW, h))

		peakY := size.Height - float32(v.tops[i])*size.Height
		v.peaks[i].Move(fyne.NewPos(x, peakY-2))
		v.peaks[i].Resize(fyne.NewSize(barW, 2))
	}
}
