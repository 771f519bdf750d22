package boomboxapp

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/edward-ap/boombox/internal/ui"
)

// mapWindow shows the data-service map products in a separate window with a
// tab per product. The window is created lazily and survives being closed;
// reopening shows the latest images.
type mapWindow struct {
	win     fyne.Window
	traffic *canvas.Image
	weather *canvas.Image

	trafficHint *widget.Label
	weatherHint *widget.Label

	mu          sync.Mutex
	lastTraffic image.Image
	lastWeather image.Image
}

func (a *App) showMapWindow() {
	a.mapWin.show()
}

func newMapWindow(fa fyne.App) *mapWindow {
	m := &mapWindow{
		traffic:     canvas.NewImageFromImage(nil),
		weather:     canvas.NewImageFromImage(nil),
		trafficHint: widget.NewLabel("Waiting for traffic tiles..."),
		weatherHint: widget.NewLabel("Waiting for weather radar..."),
	}
	m.traffic.FillMode = canvas.ImageFillContain
	m.weather.FillMode = canvas.ImageFillContain

	w := fa.NewWindow("Data Services")
	w.Resize(fyne.NewSize(640, 640))
	w.SetCloseIntercept(w.Hide)
	w.SetContent(container.NewAppTabs(
		container.NewTabItem("Traffic", container.NewStack(m.trafficHint, m.traffic)),
		container.NewTabItem("Weather", container.NewStack(m.weatherHint, m.weather)),
	))
	m.win = w
	return m
}

func (m *mapWindow) show() {
	m.mu.Lock()
	traffic, weather := m.lastTraffic, m.lastWeather
	m.mu.Unlock()
	m.apply(traffic, weather)
	m.win.Show()
}

func (m *mapWindow) apply(traffic, weather image.Image) {
	ui.CallOnMain(func() {
		if traffic != nil {
			m.traffic.Image = traffic
			m.trafficHint.Hide()
			m.traffic.Refresh()
		}
		if weather != nil {
			m.weather.Image = weather
			m.weatherHint.Hide()
			m.weather.Refresh()
		}
	})
}

func (a *App) setTrafficMap(img image.Image) {
	a.mapWin.mu.Lock()
	a.mapWin.lastTraffic = img
	a.mapWin.mu.Unlock()
	a.mapWin.apply(img, nil)
}

func (a *App) setWeatherMap(img image.Image) {
	a.mapWin.mu.Lock()
	a.mapWin.lastWeather = img
	a.mapWin.mu.Unlock()
	a.mapWin.apply(nil, img)
}
