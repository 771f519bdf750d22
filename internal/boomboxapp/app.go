// Package boomboxapp wires the tuner, metadata session, and configuration
// layers together to present the SDR Boombox desktop application window.
package boomboxapp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/hashicorp/go-hclog"

	"github.com/edward-ap/boombox/internal/artwork"
	"github.com/edward-ap/boombox/internal/config"
	"github.com/edward-ap/boombox/internal/lotdir"
	"github.com/edward-ap/boombox/internal/maps"
	"github.com/edward-ap/boombox/internal/radio"
	"github.com/edward-ap/boombox/internal/session"
	"github.com/edward-ap/boombox/internal/stats"
	"github.com/edward-ap/boombox/internal/ui"
)

// Options carries command line overrides; zero values defer to the persisted
// settings.
type Options struct {
	FreqMHz   float64
	HDProgram int
	Gain      float64
	PPM       int
	Device    int
	TraceLog  bool
}

var hdProgramNames = []string{"HD1", "HD2", "HD3", "HD4"}

// App owns the fyne application, main window, tuner, session, and widgets.
type App struct {
	fa  fyne.App
	w   fyne.Window
	log hclog.Logger

	settings *config.Settings
	presets  config.Presets

	dir   *lotdir.Dir
	sess  *session.Session
	tuner *radio.Tuner
	store *stats.Store

	freq      float64
	hdProgram int

	// UI elements
	titleLbl    *widget.Label
	subtitleLbl *widget.Label
	bitrateLbl  *widget.Label
	tickerLbl   *widget.Label
	ticker      *ui.InfoTicker
	indicator   *ui.SyncIndicator
	artPanel    *ui.ArtPanel
	logPane     *ui.LogPane
	presetBtns  [config.NumPresets]*widget.Button
	hdSelect    *widget.Select
	freqEntry   *widget.Entry

	mapWin     *mapWindow
	mapsButton *widget.Button
}

// NewApp loads configuration and builds a ready-to-run App.
func NewApp(opts Options) (*App, error) {
	logPane := ui.NewLogPane()
	level := hclog.Info
	if opts.TraceLog {
		level = hclog.Debug
	}
	log := hclog.New(&hclog.LoggerOptions{
		Name:   "boombox",
		Level:  level,
		Output: io.MultiWriter(os.Stderr, logPane),
	})

	settings, err := config.LoadSettings()
	if err != nil {
		log.Warn("settings load failed, using defaults", "error", err)
		settings = &config.Settings{Volume: config.DefaultVolume,
			WindowW: config.DefaultWidth, WindowH: config.DefaultHeight}
	}
	presets, err := config.LoadPresets()
	if err != nil {
		log.Warn("presets load failed, using defaults", "error", err)
	}
	applyOverrides(settings, opts)

	freq := settings.LastFrequency
	hd := settings.LastHDProgram
	if opts.FreqMHz > 0 {
		freq = opts.FreqMHz
		hd = opts.HDProgram
	}

	cache, err := os.UserCacheDir()
	if err != nil {
		cache = os.TempDir()
	}
	dir, err := lotdir.New(filepath.Join(cache, config.AppConfigSubdir, "aas"), log.Named("lotdir"))
	if err != nil {
		return nil, fmt.Errorf("cannot create data service directory: %w", err)
	}

	sess := session.New(session.Config{
		Dir:      dir,
		Art:      artwork.New(nil, log.Named("art")),
		BaseMaps: maps.NewBaseMapFetcher(nil, log.Named("maps")),
		Log:      log.Named("session"),
	})

	var store *stats.Store
	if cfgDir, err := config.ConfigDir(); err == nil {
		if err := os.MkdirAll(cfgDir, 0o755); err == nil {
			store, err = stats.Open(filepath.Join(cfgDir, "stats.db"), log.Named("stats"))
			if err != nil {
				log.Warn("play history unavailable", "error", err)
			}
		}
	}

	fa := app.NewWithID(config.AppID)
	fa.Settings().SetTheme(theme.DarkTheme())
	w := fa.NewWindow("SDR Boombox")
	w.SetMaster()
	w.Resize(fyne.NewSize(float32(settings.WindowW), float32(settings.WindowH)))

	a := &App{
		fa:        fa,
		w:         w,
		log:       log,
		settings:  settings,
		presets:   presets,
		dir:       dir,
		sess:      sess,
		store:     store,
		freq:      freq,
		hdProgram: hd,
		logPane:   logPane,
	}
	a.tuner = radio.NewTuner(log.Named("radio"), radio.Callbacks{
		OnLine:  a.onDecoderLine,
		OnState: a.onTunerState,
	})

	a.buildUI()
	go a.consumeEvents()

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		settings.WindowW = int(sz.Width)
		settings.WindowH = int(sz.Height)
		settings.LastFrequency = a.freq
		settings.LastHDProgram = a.hdProgram
		_ = settings.Save()
		a.shutdown()
		w.Close()
		fa.Quit()
	})
	return a, nil
}

func applyOverrides(s *config.Settings, opts Options) {
	if opts.Gain > 0 {
		s.Gain = opts.Gain
	}
	if opts.PPM != 0 {
		s.PPM = opts.PPM
	}
	if opts.Device != 0 {
		s.DeviceIndex = opts.Device
	}
}

// Run checks the external programs, restores leftover map products, tunes the
// initial station, and enters the fyne main loop.
func (a *App) Run() {
	if err := radio.CheckExecutables(a.settings.AnalogFallback); err != nil {
		a.log.Error("missing external program", "error", err)
		dialog.ShowError(fmt.Errorf("%w\n\nInstall nrsc5 and ffmpeg (ffplay); rtl_fm comes with rtl-sdr.", err), a.w)
	} else {
		a.sess.LoadExisting()
		a.tune(a.freq, a.hdProgram)
	}
	a.w.ShowAndRun()
}

func (a *App) shutdown() {
	a.tuner.Close()
	a.sess.Close()
	a.ticker.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
}

// tune retunes everything: the session state is reset first so nothing from
// the previous station leaks across.
func (a *App) tune(freqMHz float64, hdProgram int) {
	a.freq = freqMHz
	a.hdProgram = hdProgram
	a.log.Info("tuning", "freq", freqMHz, "hd", hdProgram+1)

	a.sess.SetTuning(freqMHz, hdProgram)
	a.tuner.Tune(radio.Options{
		FreqMHz:        freqMHz,
		HDProgram:      hdProgram,
		Gain:           a.settings.Gain,
		PPM:            a.settings.PPM,
		DeviceIndex:    a.settings.DeviceIndex,
		Volume:         a.settings.Volume,
		LotDir:         a.dir.Path(),
		AnalogFallback: a.settings.AnalogFallback,
	})

	ui.CallOnMain(func() {
		a.freqEntry.SetText(fmt.Sprintf("%.1f", freqMHz))
		a.hdSelect.SetSelectedIndex(hdProgram)
		a.highlightPreset()
	})
}

func (a *App) highlightPreset() {
	for i, btn := range a.presetBtns {
		if a.presets[i].FreqMHz == a.freq && a.presets[i].HDProgram == a.hdProgram {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.MediumImportance
		}
		btn.Refresh()
	}
}

func (a *App) buildUI() {
	a.titleLbl = widget.NewLabel("")
	a.titleLbl.TextStyle = fyne.TextStyle{Bold: true}
	a.titleLbl.Truncation = fyne.TextTruncateEllipsis
	a.subtitleLbl = widget.NewLabel("")
	a.subtitleLbl.Truncation = fyne.TextTruncateEllipsis
	a.bitrateLbl = widget.NewLabel("")
	a.bitrateLbl.TextStyle = fyne.TextStyle{Monospace: true}

	a.tickerLbl = widget.NewLabel("")
	tickerWrap := container.NewStack(a.tickerLbl)
	a.ticker = ui.NewInfoTicker(a.tickerLbl, tickerWrap)

	a.indicator = ui.NewSyncIndicator(14)
	a.artPanel = ui.NewArtPanel()

	for i := range a.presetBtns {
		idx := i
		label := fmt.Sprintf("%.1f", a.presets[i].FreqMHz)
		if a.presets[i].HDProgram > 0 {
			label += " " + hdProgramNames[a.presets[i].HDProgram]
		}
		a.presetBtns[i] = widget.NewButton(label, func() {
			a.tune(a.presets[idx].FreqMHz, a.presets[idx].HDProgram)
		})
	}

	a.freqEntry = widget.NewEntry()
	a.freqEntry.SetText(fmt.Sprintf("%.1f", a.freq))
	a.hdSelect = widget.NewSelect(hdProgramNames, nil)
	a.hdSelect.SetSelectedIndex(a.hdProgram)
	tuneBtn := widget.NewButton("Tune", a.onManualTune)
	a.freqEntry.OnSubmitted = func(string) { a.onManualTune() }

	a.mapWin = newMapWindow(a.fa)
	a.mapsButton = widget.NewButton("Maps", a.showMapWindow)
	historyBtn := widget.NewButton("History", a.showHistory)

	presetRow := container.NewHBox()
	for _, b := range a.presetBtns {
		presetRow.Add(b)
	}
	presetRow.Add(widget.NewSeparator())
	presetRow.Add(a.freqEntry)
	presetRow.Add(a.hdSelect)
	presetRow.Add(tuneBtn)

	statusRow := container.NewBorder(nil, nil,
		a.indicator.CanvasObject(), a.bitrateLbl, tickerWrap)

	nowPlaying := container.NewVBox(a.titleLbl, a.subtitleLbl)
	center := container.NewBorder(nil, nil, nil, nil,
		container.NewGridWithColumns(2, a.artPanel.CanvasObject(), nowPlaying))

	radioTab := container.NewBorder(presetRow, statusRow, nil, nil, center)
	tabs := container.NewAppTabs(
		container.NewTabItem("Radio", radioTab),
		container.NewTabItem("Log", a.logPane.CanvasObject()),
	)
	bottom := container.NewHBox(a.mapsButton, historyBtn)

	a.w.SetContent(container.NewBorder(nil, bottom, nil, nil, tabs))
	a.highlightPreset()
}

// onManualTune reads the frequency entry and HD selector.
func (a *App) onManualTune() {
	var mhz float64
	if _, err := fmt.Sscanf(a.freqEntry.Text, "%f", &mhz); err != nil || mhz < 76.0 || mhz > 108.0 {
		dialog.ShowInformation("Tune", "Enter an FM frequency like 104.7", a.w)
		return
	}
	hd := a.hdSelect.SelectedIndex()
	if hd < 0 {
		hd = 0
	}
	a.tune(mhz, hd)
}

// showHistory pops a dialog with the most recent plays plus the aggregate
// views: most played artists and the current station's share of the history.
func (a *App) showHistory() {
	if a.store == nil {
		dialog.ShowInformation("History", "Play history is unavailable.", a.w)
		return
	}
	plays, err := a.store.RecentPlays(20)
	if err != nil {
		dialog.ShowError(err, a.w)
		return
	}
	if len(plays) == 0 {
		dialog.ShowInformation("History", "Nothing recorded yet.", a.w)
		return
	}
	top, err := a.store.TopArtists(5)
	if err != nil {
		a.log.Warn("top artists query failed", "error", err)
	}
	station := plays[0].Station
	var stationPlays int64
	if station != "" {
		if stationPlays, err = a.store.StationCount(station); err != nil {
			a.log.Warn("station count query failed", "error", err)
		}
	}

	items := make([]string, 0, len(plays))
	for _, p := range plays {
		items = append(items, fmt.Sprintf("%s  %s — %s (%s %.1f)",
			p.PlayedAt.Format("15:04"), p.Artist, p.Title, p.Station, p.FreqMHz))
	}
	list := widget.NewList(
		func() int { return len(items) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(items[i])
		},
	)

	content := fyne.CanvasObject(list)
	if lines := historySummary(top, station, stationPlays); len(lines) > 0 {
		header := widget.NewLabel(strings.Join(lines, "\n"))
		header.Wrapping = fyne.TextWrapWord
		content = container.NewBorder(header, nil, nil, nil, list)
	}
	d := dialog.NewCustom("Listening history", "Close", content, a.w)
	d.Resize(fyne.NewSize(480, 400))
	d.Show()
}

// historySummary builds the aggregate lines shown above the recent-plays
// list.
func historySummary(top []stats.ArtistCount, station string, stationPlays int64) []string {
	var lines []string
	if len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, t := range top {
			parts = append(parts, fmt.Sprintf("%s (%d)", t.Artist, t.Count))
		}
		lines = append(lines, "Top artists: "+strings.Join(parts, ", "))
	}
	if station != "" && stationPlays > 0 {
		lines = append(lines, fmt.Sprintf("%d plays recorded on %s", stationPlays, station))
	}
	return lines
}
