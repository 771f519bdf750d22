package ui

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

// ArtPanel shows the resolved album art or logo, falling back to the
// visualizer animation when none is available.
type ArtPanel struct {
	wrap *fyne.Container
	img  *canvas.Image
	vis  *Visualizer
}

// NewArtPanel builds a panel in its fallback state.
func NewArtPanel() *ArtPanel {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillContain
	img.Hide()
	vis := NewVisualizer()
	p := &ArtPanel{
		wrap: container.NewStack(vis.CanvasObject(), img),
		img:  img,
		vis:  vis,
	}
	vis.Start()
	return p
}

// CanvasObject returns the fyne object suitable for embedding in layouts.
func (p *ArtPanel) CanvasObject() fyne.CanvasObject { return p.wrap }

// SetImage displays art and pauses the fallback animation.
func (p *ArtPanel) SetImage(img image.Image) {
	if img == nil {
		p.Clear()
		return
	}
	p.vis.Stop()
	CallOnMain(func() {
		p.img.Image = img
		p.img.Show()
		p.img.Refresh()
	})
}

// Clear returns the panel to the fallback animation.
func (p *ArtPanel) Clear() {
	CallOnMain(func() {
		p.img.Image = nil
		p.img.Hide()
	})
	p.vis.Start()
}
