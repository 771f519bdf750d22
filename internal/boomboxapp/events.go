package boomboxapp

import (
	"fmt"

	"github.com/edward-ap/boombox/internal/radio"
	"github.com/edward-ap/boombox/internal/session"
	"github.com/edward-ap/boombox/internal/stats"
	"github.com/edward-ap/boombox/internal/ui"
)

// onDecoderLine feeds raw decoder output into the session and the log pane.
// Called from the tuner's reader goroutine.
func (a *App) onDecoderLine(line string) {
	a.sess.HandleLine(line)
	a.logPane.Append(line)
}

func (a *App) onTunerState(s radio.State) {
	var mode ui.SyncMode
	switch s {
	case radio.StateTuning:
		mode = ui.SyncSearching
	case radio.StateHDSync:
		mode = ui.SyncHD
	case radio.StateAnalog:
		mode = ui.SyncAnalog
	default:
		mode = ui.SyncOff
	}
	a.indicator.SetMode(mode)
	if s == radio.StateAnalog {
		ui.CallOnMain(func() { a.bitrateLbl.SetText("analog FM") })
	}
}

// consumeEvents drains the session's display events for the lifetime of the
// application.
func (a *App) consumeEvents() {
	for ev := range a.sess.Events() {
		switch e := ev.(type) {
		case session.NowPlaying:
			ui.CallOnMain(func() {
				a.titleLbl.SetText(e.Title)
				a.subtitleLbl.SetText(e.Subtitle)
			})
		case session.StationInfo:
			a.ticker.SetItems(tickerItems(e))
		case session.ArtReady:
			a.artPanel.SetImage(e.Image)
		case session.ArtClear:
			a.artPanel.Clear()
		case session.Bitrate:
			ui.CallOnMain(func() {
				a.bitrateLbl.SetText(fmt.Sprintf("%.1f kbps", e.Kbps))
			})
		case session.TrafficMap:
			a.setTrafficMap(e.Image)
		case session.WeatherMap:
			a.setWeatherMap(e.Image)
		case session.SongSettled:
			a.recordPlay(e)
		}
	}
}

func tickerItems(info session.StationInfo) []ui.TickerItem {
	items := make([]ui.TickerItem, 0, len(info.Items))
	for _, it := range info.Items {
		items = append(items, ui.TickerItem{
			Text: it.Text,
			Bold: it.Emphasis == session.EmphasisPrimary,
			Dim:  it.Emphasis == session.EmphasisDetail,
		})
	}
	return items
}

func (a *App) recordPlay(e session.SongSettled) {
	if a.store == nil {
		return
	}
	if prev, err := a.store.LastPlay(e.Artist, e.Title); err == nil && prev != nil {
		// Surfaces in the Log tab: the listener has heard this one before.
		a.log.Info("song heard before", "artist", e.Artist, "title", e.Title,
			"last", prev.PlayedAt.Format("2006-01-02 15:04"), "station", prev.Station)
	}
	err := a.store.AddPlay(stats.SongPlay{
		Title:     e.Title,
		Artist:    e.Artist,
		Album:     e.Album,
		Station:   e.Station,
		FreqMHz:   e.Frequency,
		HDProgram: e.HDProgram,
	})
	if err != nil {
		a.log.Warn("failed to record play", "error", err)
	}
}
