// Package session holds the live metadata state for the tuned station: song
// identity, station branding, data-service map products, and art resolution.
// All state lives on a single goroutine fed by a work queue; decoder lines,
// timer callbacks, and background poll results are applied in arrival order,
// so no state needs a lock.
package session

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/edward-ap/boombox/internal/artwork"
	"github.com/edward-ap/boombox/internal/lotdir"
	"github.com/edward-ap/boombox/internal/maps"
	"github.com/edward-ap/boombox/internal/nrsc5"
)

const (
	defaultDebounce = 3 * time.Second
	defaultSettle   = 2 * time.Second

	// maxMessages caps the rotating station message list.
	maxMessages = 5

	// cleanupInterval and cleanupKeep bound the decoder's output directory.
	cleanupInterval  = 30 * time.Minute
	cleanupEverySong = 5
	cleanupKeep      = 50

	// logoRotateInterval cycles through received logos during station content.
	logoRotateInterval = 15 * time.Second
)

// Config carries the session's collaborators. Dir and Art are required; the
// rest default sensibly.
type Config struct {
	Dir      *lotdir.Dir
	Art      artwork.Fetcher
	BaseMaps *maps.BaseMapFetcher
	Log      hclog.Logger

	// DebounceDelay is how long broadcast art gets before the lookup fetch
	// fires. SettleDelay is how long a song identity must hold before it is
	// recorded. Zero values take the defaults; tests shorten both.
	DebounceDelay time.Duration
	SettleDelay   time.Duration
}

type songState struct {
	title  string
	artist string
	album  string
}

type stationState struct {
	name     string
	slogan   string
	genre    string
	messages []string
}

// Session serialises all metadata processing for one tuned frequency.
type Session struct {
	log      hclog.Logger
	dir      *lotdir.Dir
	art      artwork.Fetcher
	basemaps *maps.BaseMapFetcher

	ctx    context.Context
	cancel context.CancelFunc
	calls  chan func()
	events chan Event
	done   chan struct{}

	debounceDelay time.Duration
	settleDelay   time.Duration

	frequency float64
	hdProgram int

	song    songState
	station stationState
	bitrate float64

	resolver *artResolver

	logos     []image.Image
	logoNames map[string]bool
	logoIndex int

	tiles           *maps.Assembler
	baseMap         image.Image
	baseMapLoc      *maps.Location
	baseMapFetching bool
	weatherLoc      *maps.Location
	overlayPath     string

	settle         *time.Timer
	lastSettledKey string
	lastNowPlaying NowPlaying
	settledSongs   int
}

// New starts a session loop. Close releases it.
func New(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		log:           log,
		dir:           cfg.Dir,
		art:           cfg.Art,
		basemaps:      cfg.BaseMaps,
		ctx:           ctx,
		cancel:        cancel,
		calls:         make(chan func(), 64),
		events:        make(chan Event, 64),
		done:          make(chan struct{}),
		debounceDelay: cfg.DebounceDelay,
		settleDelay:   cfg.SettleDelay,
		logoNames:     make(map[string]bool),
		tiles:         maps.NewAssembler(),
	}
	if s.debounceDelay <= 0 {
		s.debounceDelay = defaultDebounce
	}
	if s.settleDelay <= 0 {
		s.settleDelay = defaultSettle
	}
	s.resolver = newArtResolver(s)
	go s.run()
	return s
}

// Events is the consumer side of the display notifications.
func (s *Session) Events() <-chan Event { return s.events }

// Close stops the loop. Pending background polls observe the cancelled
// context and unwind on their own.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()
	logos := time.NewTicker(logoRotateInterval)
	defer logos.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.calls:
			fn()
		case <-cleanup.C:
			go s.dir.Cleanup(cleanupKeep)
		case <-logos.C:
			s.rotateLogo()
		}
	}
}

// post queues fn onto the session loop. Safe from any goroutine; a closed
// session silently drops the work.
func (s *Session) post(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.ctx.Done():
	}
}

// emit delivers an event without ever blocking the loop. A consumer that has
// fallen this far behind loses the oldest-style update, not the session.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event channel full, dropping", "event", fmt.Sprintf("%T", ev))
	}
}

// HandleLine feeds one raw decoder log line into the session.
func (s *Session) HandleLine(line string) {
	updates := nrsc5.Classify(line)
	if len(updates) == 0 {
		return
	}
	s.post(func() { s.apply(updates) })
}

// SetTuning records the frequency and HD sub-program and resets all carried
// state; nothing from the previous station may survive a retune.
func (s *Session) SetTuning(freqMHz float64, hdProgram int) {
	s.post(func() {
		s.frequency = freqMHz
		s.hdProgram = hdProgram
		s.reset()
	})
}

func (s *Session) reset() {
	s.song = songState{}
	s.station = stationState{}
	s.bitrate = 0
	s.logos = nil
	s.logoNames = make(map[string]bool)
	s.logoIndex = 0
	s.tiles = maps.NewAssembler()
	s.weatherLoc = nil
	s.baseMap = nil
	s.baseMapLoc = nil
	s.overlayPath = ""
	s.lastSettledKey = ""
	s.lastNowPlaying = NowPlaying{}
	s.stopSettle()
	s.resolver.lastResolvedKey = ""
	s.resolver.identityChanged()
	s.emitNowPlaying()
	s.emit(StationInfo{})
}

// apply folds a batch of field updates into the state and emits whatever
// display changes follow. Runs on the session loop.
func (s *Session) apply(updates []nrsc5.FieldUpdate) {
	var songChanged, stationChanged, albumChanged bool
	for _, u := range updates {
		switch v := u.(type) {
		case nrsc5.Title:
			if s.song.title != string(v) {
				s.song.title = string(v)
				s.song.album = ""
				songChanged = true
			}
		case nrsc5.Artist:
			if s.song.artist != string(v) {
				s.song.artist = string(v)
				songChanged = true
			}
		case nrsc5.Album:
			if s.song.album != string(v) {
				s.song.album = string(v)
				albumChanged = true
			}
		case nrsc5.StationName:
			if s.station.name != string(v) {
				s.station.name = string(v)
				stationChanged = true
			}
		case nrsc5.Slogan:
			if s.station.slogan != string(v) {
				s.station.slogan = string(v)
				stationChanged = true
			}
		case nrsc5.Genre:
			if s.station.genre != string(v) {
				s.station.genre = string(v)
				stationChanged = true
			}
		case nrsc5.Message:
			if s.addMessage(string(v)) {
				stationChanged = true
			}
		case nrsc5.BitrateKbps:
			if s.bitrate != float64(v) {
				s.bitrate = float64(v)
				s.emit(Bitrate{Kbps: s.bitrate})
			}
		case nrsc5.LotFileAnnounced:
			s.handleLot(v.Name, v.Port)
		}
	}

	if songChanged {
		s.log.Debug("song identity changed",
			"title", s.song.title, "artist", s.song.artist)
		s.resolver.identityChanged()
		s.scheduleSettle()
	} else if stationChanged && !s.songIdentityComplete() {
		// Branding changed while showing station content; the art key
		// follows the station label.
		s.resolver.identityChanged()
	}
	if songChanged || stationChanged || albumChanged {
		s.emitNowPlaying()
	}
	if stationChanged {
		s.emitStationInfo()
	}
}

func (s *Session) addMessage(msg string) bool {
	for _, m := range s.station.messages {
		if m == msg {
			return false
		}
	}
	s.station.messages = append(s.station.messages, msg)
	if len(s.station.messages) > maxMessages {
		s.station.messages = s.station.messages[len(s.station.messages)-maxMessages:]
	}
	return true
}

// songIdentityComplete reports whether title and artist form a real track
// identity rather than station filler.
func (s *Session) songIdentityComplete() bool {
	return s.song.title != "" && s.song.artist != "" &&
		!LooksLikeStation(s.song.title) && !LooksLikeStation(s.song.artist)
}

// emitNowPlaying publishes the primary display pair, preferring song metadata
// over station branding over the bare frequency.
func (s *Session) emitNowPlaying() {
	var np NowPlaying
	switch {
	case s.song.title != "" && s.song.artist != "":
		np = NowPlaying{Title: s.song.title, Subtitle: s.song.artist}
	case s.song.title != "":
		np = NowPlaying{Title: s.song.title}
	case s.song.artist != "":
		np = NowPlaying{Title: s.song.artist}
	case s.station.name != "":
		np = NowPlaying{Title: s.station.name, Subtitle: s.station.slogan}
	default:
		np = NowPlaying{Title: fmt.Sprintf("%.1f FM", s.frequency)}
	}
	if np != s.lastNowPlaying {
		s.lastNowPlaying = np
		s.emit(np)
	}
}

func (s *Session) emitStationInfo() {
	var items []InfoItem
	if s.station.name != "" {
		items = append(items, InfoItem{Text: s.station.name, Emphasis: EmphasisPrimary})
	}
	if s.station.slogan != "" {
		items = append(items, InfoItem{Text: s.station.slogan, Emphasis: EmphasisSecondary})
	}
	if s.station.genre != "" {
		items = append(items, InfoItem{Text: "Genre: " + s.station.genre, Emphasis: EmphasisDetail})
	}
	for _, m := range s.station.messages {
		items = append(items, InfoItem{Text: m, Emphasis: EmphasisDetail})
	}
	s.emit(StationInfo{Items: items})
}

// rotateLogo advances the displayed logo while station branding is showing;
// it never replaces resolved track art.
func (s *Session) rotateLogo() {
	if len(s.logos) < 2 {
		return
	}
	if s.resolver.state != artResolved || s.resolver.query != "" {
		return
	}
	s.logoIndex = (s.logoIndex + 1) % len(s.logos)
	s.emit(ArtReady{Image: s.logos[s.logoIndex]})
}

func (s *Session) firstLogo() image.Image {
	if len(s.logos) == 0 {
		return nil
	}
	return s.logos[0]
}

// --- settle / play history ---

func (s *Session) scheduleSettle() {
	s.stopSettle()
	if !s.songIdentityComplete() {
		return
	}
	key := s.song.artist + "||" + s.song.title
	if key == s.lastSettledKey {
		return
	}
	s.settle = time.AfterFunc(s.settleDelay, func() {
		s.post(func() { s.onSettle(key) })
	})
}

func (s *Session) stopSettle() {
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
}

// onSettle fires after the identity has held for the settle delay; a song
// that changed again in the meantime carries a different key and is skipped.
func (s *Session) onSettle(key string) {
	if !s.songIdentityComplete() || s.song.artist+"||"+s.song.title != key {
		return
	}
	s.lastSettledKey = key
	s.emit(SongSettled{
		Title:     s.song.title,
		Artist:    s.song.artist,
		Album:     s.song.album,
		Station:   s.station.name,
		Frequency: s.frequency,
		HDProgram: s.hdProgram,
	})
	s.settledSongs++
	if s.settledSongs%cleanupEverySong == 0 {
		go s.dir.Cleanup(cleanupKeep)
	}
}

// --- LOT data services ---

func (s *Session) handleLot(name, port string) {
	kind := nrsc5.ClassifyAsset(name, port, s.hdProgram)
	s.log.Debug("lot file announced", "name", name, "port", port, "kind", kind)
	switch kind {
	case nrsc5.AssetTrackArt:
		s.resolver.broadcastAnnounced(name)
	case nrsc5.AssetStationLogo:
		s.awaitLogo(name)
	case nrsc5.AssetTrafficTile:
		s.awaitTrafficTile(name)
	case nrsc5.AssetWeatherOverlay:
		s.awaitWeatherOverlay(name)
	case nrsc5.AssetWeatherInfo:
		s.awaitWeatherInfo(name)
	}
}

func (s *Session) awaitLogo(name string) {
	if s.logoNames[name] {
		return
	}
	s.logoNames[name] = true
	go func() {
		path, err := s.dir.AwaitStable(s.ctx, name)
		if err != nil {
			return
		}
		img, err := decodeImageFile(path)
		if err != nil {
			s.log.Debug("logo undecodable", "file", name, "error", err)
			return
		}
		s.post(func() {
			s.logos = append(s.logos, img)
			s.resolver.logoArrived(img)
		})
	}()
}

func (s *Session) awaitTrafficTile(name string) {
	ref, err := maps.ParseTileName(name)
	if err != nil {
		s.log.Debug("ignoring malformed tile name", "name", name, "error", err)
		return
	}
	go func() {
		path, err := s.dir.AwaitStable(s.ctx, name)
		if err != nil {
			return
		}
		s.post(func() { s.addTile(ref, path) })
	}()
}

func (s *Session) addTile(ref maps.TileRef, path string) {
	if !s.tiles.Add(ref, path) {
		return
	}
	// Grid complete. Compose off-loop; nine image decodes are not cheap.
	paths := s.tiles.Paths()
	ts := s.tiles.Timestamp()
	go func() {
		img, err := maps.Compose(paths)
		if err != nil {
			s.log.Warn("traffic map composition failed", "timestamp", ts, "error", err)
			return
		}
		s.dir.RemoveStaleMatching("TMT_", ts)
		s.post(func() {
			s.log.Info("traffic map composed", "timestamp", ts)
			s.emit(TrafficMap{Image: img})
		})
	}()
}

func (s *Session) awaitWeatherOverlay(name string) {
	go func() {
		path, err := s.dir.AwaitStable(s.ctx, name)
		if err != nil {
			return
		}
		s.post(func() {
			s.overlayPath = path
			s.renderWeather()
		})
	}()
}

// renderWeather composites the latest overlay onto the base map, fetching or
// refreshing the base map first when the known location has moved.
func (s *Session) renderWeather() {
	if s.overlayPath == "" {
		return
	}
	if s.baseMap == nil || !sameLocation(s.baseMapLoc, s.weatherLoc) {
		s.fetchBaseMap()
		return
	}
	base := s.baseMap
	overlayPath := s.overlayPath
	go func() {
		overlay, err := decodeImageFile(overlayPath)
		if err != nil {
			s.log.Debug("weather overlay undecodable", "file", overlayPath, "error", err)
			return
		}
		img := maps.CompositeOverlay(base, overlay)
		s.post(func() { s.emit(WeatherMap{Image: img}) })
	}()
}

// fetchBaseMap retrieves tiles for the current weather location. At most one
// fetch runs at a time; overlay arrivals during the fetch re-render from the
// completion callback, which re-checks the location.
func (s *Session) fetchBaseMap() {
	if s.baseMapFetching {
		return
	}
	s.baseMapFetching = true
	loc := s.weatherLoc
	go func() {
		var base image.Image
		if s.basemaps != nil {
			if img, err := s.basemaps.Fetch(s.ctx, loc); err == nil {
				base = img
			} else {
				s.log.Warn("base map fetch failed, using placeholder", "error", err)
			}
		}
		if base == nil {
			base = maps.Placeholder()
		}
		s.post(func() {
			s.baseMapFetching = false
			s.baseMap = base
			s.baseMapLoc = loc
			s.renderWeather()
		})
	}()
}

func sameLocation(a, b *maps.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lat == b.Lat && a.Lon == b.Lon
}

func (s *Session) awaitWeatherInfo(name string) {
	go func() {
		path, err := s.dir.AwaitStable(s.ctx, name)
		if err != nil {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		loc := maps.ParseWeatherInfo(string(data))
		if loc == nil {
			return
		}
		s.post(func() {
			if sameLocation(s.weatherLoc, loc) {
				return
			}
			s.log.Info("weather location decoded", "lat", loc.Lat, "lon", loc.Lon)
			s.weatherLoc = loc
			s.baseMap = nil
			s.renderWeather()
		})
	}()
}

// LoadExisting scans the directory for map products left over from an earlier
// run of the decoder so the map window is not empty at startup.
func (s *Session) LoadExisting() {
	entries, err := os.ReadDir(s.dir.Path())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case nrsc5.IsImageFile(name) && strings.Contains(name, "TMT_"):
			if ref, err := maps.ParseTileName(name); err == nil {
				path := filepath.Join(s.dir.Path(), name)
				s.post(func() { s.addTile(ref, path) })
			}
		case nrsc5.IsImageFile(name) && strings.Contains(name, "DWRO_"):
			path := filepath.Join(s.dir.Path(), name)
			s.post(func() {
				s.overlayPath = path
				s.renderWeather()
			})
		case strings.Contains(name, "DWRI_"):
			s.awaitWeatherInfo(name)
		}
	}
}
