package session

import "image"

// Event is a display-ready notification emitted by the session. The UI and
// map window consume events from a channel; they hold no reference back into
// session state.
type Event interface {
	isEvent()
}

// Emphasis ranks how prominently a station info item should render.
type Emphasis int

const (
	// EmphasisPrimary is the station name.
	EmphasisPrimary Emphasis = iota
	// EmphasisSecondary is the slogan.
	EmphasisSecondary
	// EmphasisDetail is supporting text such as the genre.
	EmphasisDetail
)

// InfoItem is one line of the rotating station info display.
type InfoItem struct {
	Text     string
	Emphasis Emphasis
}

// StationInfo carries the ordered station identity items.
type StationInfo struct {
	Items []InfoItem
}

// NowPlaying is the primary/secondary display pair: title/artist while a song
// is known, station branding otherwise.
type NowPlaying struct {
	Title    string
	Subtitle string
}

// ArtReady delivers a decoded image for the art panel.
type ArtReady struct {
	Image image.Image
}

// ArtClear means no art is available; the display shows its fallback
// visualizer. It is the correct state for "no art", not an error.
type ArtClear struct{}

// Bitrate reports the decoder's audio bit rate.
type Bitrate struct {
	Kbps float64
}

// TrafficMap delivers the composed 3x3 traffic map.
type TrafficMap struct {
	Image image.Image
}

// WeatherMap delivers the weather radar composited onto its base map.
type WeatherMap struct {
	Image image.Image
}

// SongSettled fires once a song identity has been stable long enough to
// record in the play history.
type SongSettled struct {
	Title     string
	Artist    string
	Album     string
	Station   string
	Frequency float64
	HDProgram int
}

func (StationInfo) isEvent() {}
func (NowPlaying) isEvent()  {}
func (ArtReady) isEvent()    {}
func (ArtClear) isEvent()    {}
func (Bitrate) isEvent()     {}
func (TrafficMap) isEvent()  {}
func (WeatherMap) isEvent()  {}
func (SongSettled) isEvent() {}
