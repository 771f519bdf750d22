package session

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"
)

// artState tracks where art resolution stands for the current identity.
type artState int

const (
	artIdle artState = iota
	// artAwaitingBroadcast: the song just changed; broadcast art may still
	// arrive, so the lookup fetch is held behind the debounce.
	artAwaitingBroadcast
	// artResolved: an image (broadcast or lookup) is on display.
	artResolved
	// artNoArt: nothing available; the fallback visualizer is showing.
	artNoArt
)

// artResolver owns art resolution for the current song or station identity.
// All methods run on the session loop; background fetch and poll goroutines
// post their results back rather than touching state directly.
type artResolver struct {
	s *Session

	state           artState
	key             string // current request key
	query           string // lookup query for key; empty in station mode
	lastResolvedKey string

	// gen increments on every identity change. Completions carrying an older
	// generation are discarded: a slow fetch for song A must never surface
	// as art for song B.
	gen uint64

	debounce    *time.Timer
	fetchCancel context.CancelFunc

	// broadcastPolls counts announced track-art files whose poll has not
	// finished yet. Any outstanding poll suppresses the debounce-triggered
	// lookup fetch; decoders can announce the same song's art on several
	// ports, so a single failed poll must not clear the suppression.
	broadcastPolls int
	// fetchDeferred remembers that the debounce elapsed while a broadcast
	// poll was pending, so a failed poll can still fall back to the lookup.
	fetchDeferred bool
}

func newArtResolver(s *Session) *artResolver {
	return &artResolver{s: s}
}

// identityChanged recomputes the request key after any song or station
// update that invalidates the previous art, cancelling stale timers and
// fetches for the old identity.
func (r *artResolver) identityChanged() {
	r.gen++
	r.cancelPending()
	r.broadcastPolls = 0
	r.fetchDeferred = false

	s := r.s
	title, artist := s.song.title, s.song.artist
	if title != "" && artist != "" && !LooksLikeStation(title) && !LooksLikeStation(artist) {
		r.key = "TRACK||" + artist + "||" + title
		r.query = artist + " " + title
		if r.key == r.lastResolvedKey {
			// Metadata lines repeat; an identical key is a no-op.
			r.state = artResolved
			return
		}
		// The previous art no longer belongs to what is playing; the display
		// falls back until something resolves for the new key.
		s.emit(ArtClear{})
		r.state = artAwaitingBroadcast
		gen := r.gen
		r.debounce = time.AfterFunc(s.debounceDelay, func() {
			s.post(func() { r.onDebounce(gen) })
		})
		s.log.Debug("awaiting broadcast art", "key", r.key)
		return
	}

	// Station mode: no complete non-station song identity. Branding shows a
	// logo when one has arrived, otherwise the fallback visual; no lookup
	// fetch is ever issued for station content.
	label := s.station.name
	if label == "" {
		label = fmt.Sprintf("%.1f", s.frequency)
	}
	r.key = "STATION||" + label
	r.query = ""
	if r.key == r.lastResolvedKey {
		r.state = artResolved
		return
	}
	if logo := s.firstLogo(); logo != nil {
		r.state = artResolved
		r.lastResolvedKey = r.key
		s.emit(ArtReady{Image: logo})
		return
	}
	r.state = artNoArt
	s.emit(ArtClear{})
}

// onDebounce fires when broadcast art has had its grace period. A stale
// generation or an announcement that arrived meanwhile suppresses the fetch.
func (r *artResolver) onDebounce(gen uint64) {
	if gen != r.gen || r.state != artAwaitingBroadcast {
		return
	}
	if r.broadcastPolls > 0 {
		r.fetchDeferred = true
		return
	}
	r.startFetch(gen)
}

// startFetch issues the single lookup-service request for the current key.
func (r *artResolver) startFetch(gen uint64) {
	s := r.s
	ctx, cancel := context.WithCancel(s.ctx)
	r.fetchCancel = cancel
	key, query := r.key, r.query
	s.log.Debug("fetching lookup artwork", "key", key)
	go func() {
		defer cancel()
		img, err := s.art.Fetch(ctx, query)
		s.post(func() { r.onFetchDone(gen, key, img, err) })
	}()
}

func (r *artResolver) onFetchDone(gen uint64, key string, img image.Image, err error) {
	if gen != r.gen || key != r.key {
		r.s.log.Debug("discarding stale artwork result", "key", key)
		return
	}
	if err != nil || img == nil {
		r.s.log.Debug("no lookup artwork", "key", key, "error", err)
		r.state = artNoArt
		r.s.emit(ArtClear{})
		return
	}
	r.state = artResolved
	r.lastResolvedKey = key
	r.s.emit(ArtReady{Image: img})
}

// broadcastAnnounced starts polling for an announced track-art file. The
// announcement alone suppresses the lookup fetch; the poll outcome decides
// whether that suppression sticks.
func (r *artResolver) broadcastAnnounced(name string) {
	r.broadcastPolls++
	gen := r.gen
	s := r.s
	go func() {
		path, err := s.dir.AwaitStable(s.ctx, name)
		if err != nil {
			s.post(func() { r.onBroadcastMissing(gen, name) })
			return
		}
		img, err := decodeImageFile(path)
		s.post(func() {
			if err != nil {
				s.log.Debug("broadcast art undecodable", "file", name, "error", err)
				r.onBroadcastMissing(gen, name)
				return
			}
			r.onBroadcastArt(gen, img)
		})
	}()
}

func (r *artResolver) onBroadcastArt(gen uint64, img image.Image) {
	if gen != r.gen {
		return
	}
	if r.broadcastPolls > 0 {
		r.broadcastPolls--
	}
	r.cancelPending()
	r.state = artResolved
	r.lastResolvedKey = r.key
	r.s.log.Debug("broadcast art resolved", "key", r.key)
	r.s.emit(ArtReady{Image: img})
}

func (r *artResolver) onBroadcastMissing(gen uint64, name string) {
	if gen != r.gen {
		return
	}
	r.s.log.Debug("broadcast art never arrived", "file", name)
	if r.broadcastPolls > 0 {
		r.broadcastPolls--
	}
	if r.broadcastPolls == 0 && r.fetchDeferred && r.state == artAwaitingBroadcast {
		r.fetchDeferred = false
		r.startFetch(r.gen)
	}
}

// logoArrived shows a freshly received station logo, but only while station
// content is on display; a logo never replaces resolved track art.
func (r *artResolver) logoArrived(img image.Image) {
	if r.query != "" {
		return
	}
	r.state = artResolved
	r.lastResolvedKey = r.key
	r.s.emit(ArtReady{Image: img})
}

// cancelPending stops the debounce timer and suppresses any in-flight lookup
// fetch. There is no hard abort of the network call; its result is simply
// ignored when it completes against an older generation.
func (r *artResolver) cancelPending() {
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	if r.fetchCancel != nil {
		r.fetchCancel()
		r.fetchCancel = nil
	}
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
