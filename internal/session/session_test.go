package session

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edward-ap/boombox/internal/artwork"
	"github.com/edward-ap/boombox/internal/lotdir"
	"github.com/edward-ap/boombox/internal/maps"
)

// fakeFetcher resolves lookup queries from a fixed map; unknown queries
// report no art. An optional delay simulates a slow network.
type fakeFetcher struct {
	mu      sync.Mutex
	images  map[string]image.Image
	delay   time.Duration
	queries []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, query string) (image.Image, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if img, ok := f.images[query]; ok {
		return img, nil
	}
	return nil, artwork.ErrNoArt
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func testImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestSession(t *testing.T, f artwork.Fetcher) (*Session, *lotdir.Dir) {
	t.Helper()
	dir, err := lotdir.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	dir.Backoff = []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}
	dir.StabilitySample = time.Millisecond
	s := New(Config{
		Dir:           dir,
		Art:           f,
		DebounceDelay: 100 * time.Millisecond,
		SettleDelay:   60 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return s, dir
}

// waitEvent drains the event channel until an event of type T arrives.
func waitEvent[T Event](t *testing.T, s *Session, timeout time.Duration) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-s.Events():
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestLookupFetchAfterDebounce(t *testing.T) {
	f := &fakeFetcher{images: map[string]image.Image{
		"The Long Haul Midnight Drive": testImage(3, 3),
	}}
	s, _ := newTestSession(t, f)

	s.HandleLine("19:04:55 Title: Midnight Drive")
	s.HandleLine("19:04:55 Artist: The Long Haul")

	got := waitEvent[ArtReady](t, s, 2*time.Second)
	if got.Image.Bounds().Dx() != 3 {
		t.Errorf("unexpected art image %v", got.Image.Bounds())
	}

	// Repeated metadata lines must not trigger another request.
	s.HandleLine("19:04:58 Title: Midnight Drive")
	s.HandleLine("19:04:58 Artist: The Long Haul")
	time.Sleep(250 * time.Millisecond)
	if calls := f.calls(); len(calls) != 1 || calls[0] != "The Long Haul Midnight Drive" {
		t.Errorf("lookup calls = %v, want exactly one", calls)
	}
}

func TestStationContentNeverFetches(t *testing.T) {
	f := &fakeFetcher{}
	s, _ := newTestSession(t, f)

	s.HandleLine("Title: Traffic on the 9s")
	s.HandleLine("Artist: WKXY 104.7")

	waitEvent[ArtClear](t, s, time.Second)
	time.Sleep(250 * time.Millisecond)
	if calls := f.calls(); len(calls) != 0 {
		t.Errorf("station content triggered lookup calls %v", calls)
	}
}

func TestStaleLookupDiscarded(t *testing.T) {
	f := &fakeFetcher{
		delay: 150 * time.Millisecond,
		images: map[string]image.Image{
			"Artist A Song A": testImage(1, 1),
			"Artist B Song B": testImage(2, 2),
		},
	}
	s, _ := newTestSession(t, f)

	s.HandleLine("Title: Song A")
	s.HandleLine("Artist: Artist A")
	// Let the first lookup start, then change the song under it.
	time.Sleep(120 * time.Millisecond)
	s.HandleLine("Title: Song B")
	s.HandleLine("Artist: Artist B")

	got := waitEvent[ArtReady](t, s, 2*time.Second)
	if got.Image.Bounds().Dx() != 2 {
		t.Errorf("stale art surfaced: got %v, want the 2x2 result", got.Image.Bounds())
	}
}

func TestBroadcastArtSuppressesLookup(t *testing.T) {
	f := &fakeFetcher{images: map[string]image.Image{
		"The Long Haul Midnight Drive": testImage(3, 3),
	}}
	s, dir := newTestSession(t, f)
	writePNG(t, filepath.Join(dir.Path(), "ART_0441.png"), 7, 7)

	s.HandleLine("Title: Midnight Drive")
	s.HandleLine("Artist: The Long Haul")
	s.HandleLine("LOT file: port=0810 lot=65 name=ART_0441.png size=9113")

	got := waitEvent[ArtReady](t, s, 2*time.Second)
	if got.Image.Bounds().Dx() != 7 {
		t.Errorf("art image %v, want the 7x7 broadcast file", got.Image.Bounds())
	}
	time.Sleep(250 * time.Millisecond)
	if calls := f.calls(); len(calls) != 0 {
		t.Errorf("broadcast art did not suppress lookup: calls %v", calls)
	}
}

func TestLookupFallbackWhenBroadcastNeverArrives(t *testing.T) {
	f := &fakeFetcher{images: map[string]image.Image{
		"The Long Haul Midnight Drive": testImage(3, 3),
	}}
	s, _ := newTestSession(t, f)

	s.HandleLine("Title: Midnight Drive")
	s.HandleLine("Artist: The Long Haul")
	s.HandleLine("LOT file: port=0810 lot=65 name=ART_0441.png size=9113")

	got := waitEvent[ArtReady](t, s, 2*time.Second)
	if got.Image.Bounds().Dx() != 3 {
		t.Errorf("art image %v, want the lookup result", got.Image.Bounds())
	}
	if calls := f.calls(); len(calls) != 1 {
		t.Errorf("lookup calls = %v, want exactly one", calls)
	}
}

func TestFailedBroadcastPollKeepsSuppression(t *testing.T) {
	f := &fakeFetcher{images: map[string]image.Image{
		"The Long Haul Midnight Drive": testImage(3, 3),
	}}
	s, dir := newTestSession(t, f)
	backoff := make([]time.Duration, 12)
	for i := range backoff {
		backoff[i] = 20 * time.Millisecond
	}
	dir.Backoff = backoff
	dir.StabilitySample = 20 * time.Millisecond

	// Two art announcements for the same song: ART_0441 never hits the disk
	// and exhausts its retry budget, while ART_0442 keeps growing past that
	// point and only then settles. The first poll's failure must not break
	// the suppression while the second is still outstanding.
	slow := filepath.Join(dir.Path(), "ART_0442.png")
	writePNG(t, slow, 7, 7)
	stop := make(chan struct{})
	grown := make(chan struct{})
	go func() {
		defer close(grown)
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				if fp, err := os.OpenFile(slow, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
					_, _ = fp.Write([]byte{0})
					fp.Close()
				}
			}
		}
	}()

	s.HandleLine("Title: Midnight Drive")
	s.HandleLine("Artist: The Long Haul")
	s.HandleLine("LOT file: port=0810 lot=65 name=ART_0441.png size=9113")
	s.HandleLine("LOT file: port=0810 lot=66 name=ART_0442.png size=9113")

	time.Sleep(320 * time.Millisecond)
	close(stop)
	<-grown

	got := waitEvent[ArtReady](t, s, 3*time.Second)
	if got.Image.Bounds().Dx() != 7 {
		t.Errorf("art image %v, want the 7x7 broadcast file", got.Image.Bounds())
	}
	if calls := f.calls(); len(calls) != 0 {
		t.Errorf("failed poll broke broadcast suppression: lookup calls %v", calls)
	}
}

func TestTrafficMapComposition(t *testing.T) {
	s, dir := newTestSession(t, &fakeFetcher{})

	for row := 1; row <= 3; row++ {
		for col := 1; col <= 3; col++ {
			name := tileName(row, col, "20251031_1614")
			writePNG(t, filepath.Join(dir.Path(), name), 4, 4)
			s.HandleLine("LOT file: port=0453 lot=12 name=" + name + " size=100")
		}
	}

	got := waitEvent[TrafficMap](t, s, 2*time.Second)
	if b := got.Image.Bounds(); b.Dx() != 12 || b.Dy() != 12 {
		t.Errorf("traffic map is %dx%d, want 12x12", b.Dx(), b.Dy())
	}
}

func tileName(row, col int, ts string) string {
	return "TMT_03g9rc_" + string(rune('0'+row)) + "_" + string(rune('0'+col)) + "_" + ts + "_8ca2.png"
}

func TestWeatherOverlayUsesPlaceholderBaseMap(t *testing.T) {
	s, dir := newTestSession(t, &fakeFetcher{})
	writePNG(t, filepath.Join(dir.Path(), "DWRO_radar_20251031.png"), 10, 10)

	s.HandleLine("LOT file: port=0453 lot=40 name=DWRO_radar_20251031.png size=2000")

	got := waitEvent[WeatherMap](t, s, 2*time.Second)
	if b := got.Image.Bounds(); b.Dx() != 600 || b.Dy() != 600 {
		t.Errorf("weather map is %dx%d, want 600x600", b.Dx(), b.Dy())
	}
}

func TestBaseMapFetchedOncePerLocation(t *testing.T) {
	var tile bytes.Buffer
	if err := png.Encode(&tile, testImage(256, 256)); err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write(tile.Bytes())
	}))
	defer srv.Close()

	dir, err := lotdir.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	dir.Backoff = []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}
	dir.StabilitySample = time.Millisecond
	bm := maps.NewBaseMapFetcher(srv.Client(), nil)
	bm.SetTileURL(srv.URL)
	s := New(Config{
		Dir:           dir,
		Art:           &fakeFetcher{},
		BaseMaps:      bm,
		DebounceDelay: 100 * time.Millisecond,
		SettleDelay:   60 * time.Millisecond,
	})
	t.Cleanup(s.Close)

	// Both overlays arrive while the slow tile fetch is still in flight; the
	// second render must reuse the fetch already underway.
	for _, name := range []string{"DWRO_radar_20251031_1600.png", "DWRO_radar_20251031_1615.png"} {
		writePNG(t, filepath.Join(dir.Path(), name), 10, 10)
		s.HandleLine("LOT file: port=0453 lot=40 name=" + name + " size=2000")
	}

	waitEvent[WeatherMap](t, s, 5*time.Second)
	mu.Lock()
	defer mu.Unlock()
	if requests != 9 {
		t.Errorf("tile requests = %d, want one 3x3 fetch", requests)
	}
}

func TestLogoShownForStationContent(t *testing.T) {
	s, dir := newTestSession(t, &fakeFetcher{})
	writePNG(t, filepath.Join(dir.Path(), "WKXY$$logo.png"), 5, 5)

	s.HandleLine("Station name: WKXY")
	s.HandleLine("LOT file: port=1000 lot=2 name=WKXY$$logo.png size=500")

	got := waitEvent[ArtReady](t, s, 2*time.Second)
	if got.Image.Bounds().Dx() != 5 {
		t.Errorf("art image %v, want the 5x5 logo", got.Image.Bounds())
	}
}

func TestSongSettledAfterDelay(t *testing.T) {
	s, _ := newTestSession(t, &fakeFetcher{})
	s.SetTuning(104.7, 0)

	s.HandleLine("Station name: WKXY")
	s.HandleLine("Title: Midnight Drive")
	s.HandleLine("Artist: The Long Haul")
	s.HandleLine("Album: Long Roads")

	got := waitEvent[SongSettled](t, s, 2*time.Second)
	if got.Title != "Midnight Drive" || got.Artist != "The Long Haul" ||
		got.Album != "Long Roads" || got.Station != "WKXY" || got.Frequency != 104.7 {
		t.Errorf("settled song = %+v", got)
	}
}

func TestSongChangeBeforeSettle(t *testing.T) {
	s, _ := newTestSession(t, &fakeFetcher{})

	s.HandleLine("Title: Song A")
	s.HandleLine("Artist: Artist A")
	time.Sleep(20 * time.Millisecond)
	s.HandleLine("Title: Song B")
	s.HandleLine("Artist: Artist B")

	got := waitEvent[SongSettled](t, s, 2*time.Second)
	if got.Title != "Song B" {
		t.Errorf("first settled song is %q, want the one that held", got.Title)
	}
}

func TestNowPlayingPriority(t *testing.T) {
	s, _ := newTestSession(t, &fakeFetcher{})

	s.HandleLine("Station name: WKXY")
	np := waitEvent[NowPlaying](t, s, time.Second)
	if np.Title != "WKXY" || np.Subtitle != "" {
		t.Fatalf("name-only display = %+v", np)
	}

	s.HandleLine("Slogan: The River")
	np = waitEvent[NowPlaying](t, s, time.Second)
	if np.Title != "WKXY" || np.Subtitle != "The River" {
		t.Fatalf("branding display = %+v", np)
	}

	s.HandleLine("Title: Midnight Drive")
	np = waitEvent[NowPlaying](t, s, time.Second)
	if np.Title != "Midnight Drive" || np.Subtitle != "" {
		t.Fatalf("title-only display = %+v", np)
	}

	s.HandleLine("Artist: The Long Haul")
	np = waitEvent[NowPlaying](t, s, time.Second)
	if np.Title != "Midnight Drive" || np.Subtitle != "The Long Haul" {
		t.Fatalf("full display = %+v", np)
	}
}

func TestStationInfoItems(t *testing.T) {
	s, _ := newTestSession(t, &fakeFetcher{})

	s.HandleLine("Station name: WKXY")
	s.HandleLine("Slogan: The River")
	s.HandleLine("Genre: Country")
	s.HandleLine("Message: Storm watch until 9 PM")

	deadline := time.After(time.Second)
	for {
		var info StationInfo
		select {
		case ev := <-s.Events():
			si, ok := ev.(StationInfo)
			if !ok {
				continue
			}
			info = si
		case <-deadline:
			t.Fatal("complete station info never arrived")
		}
		if len(info.Items) < 4 {
			continue
		}
		want := []InfoItem{
			{Text: "WKXY", Emphasis: EmphasisPrimary},
			{Text: "The River", Emphasis: EmphasisSecondary},
			{Text: "Genre: Country", Emphasis: EmphasisDetail},
			{Text: "Storm watch until 9 PM", Emphasis: EmphasisDetail},
		}
		for i, w := range want {
			if info.Items[i] != w {
				t.Errorf("item %d = %+v, want %+v", i, info.Items[i], w)
			}
		}
		return
	}
}

func TestBitrateReported(t *testing.T) {
	s, _ := newTestSession(t, &fakeFetcher{})
	s.HandleLine("19:04:55 Audio bit rate: 47.9 kbps")
	got := waitEvent[Bitrate](t, s, time.Second)
	if got.Kbps != 47.9 {
		t.Errorf("bitrate = %v, want 47.9", got.Kbps)
	}
}

func TestRetuneResetsState(t *testing.T) {
	s, _ := newTestSession(t, &fakeFetcher{})
	s.SetTuning(104.7, 0)
	s.HandleLine("Title: Midnight Drive")
	s.HandleLine("Artist: The Long Haul")
	waitEvent[NowPlaying](t, s, time.Second)

	s.SetTuning(98.3, 0)
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-s.Events():
			if np, ok := ev.(NowPlaying); ok && np.Title == "98.3 FM" {
				if np.Subtitle != "" {
					t.Errorf("reset display kept subtitle %q", np.Subtitle)
				}
				return
			}
		case <-deadline:
			t.Fatal("retune never cleared the display")
		}
	}
}
