package maps

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompositeOverlayBlends(t *testing.T) {
	base := solid(100, 100, color.RGBA{R: 200, A: 255})
	overlay := solid(50, 50, color.RGBA{B: 200, A: 255})

	out := CompositeOverlay(base, overlay)
	if b := out.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("bounds = %v", b)
	}

	// Corner stays pure base; the overlay is scaled to fill and centered, so
	// the middle shows the 70% blend of overlay over base.
	_, _, cb, _ := out.At(50, 50).RGBA()
	if cb == 0 {
		t.Fatal("overlay not painted at center")
	}
	cr, _, _, _ := out.At(50, 50).RGBA()
	if uint8(cr>>8) >= 200 {
		t.Fatal("base not attenuated under overlay")
	}
}

func TestCompositeOverlayPreservesAspect(t *testing.T) {
	base := solid(100, 100, color.RGBA{R: 200, A: 255})
	overlay := solid(200, 100, color.RGBA{B: 200, A: 255}) // 2:1, scales to 100x50

	out := CompositeOverlay(base, overlay)
	// Above and below the centered band the base is untouched.
	_, _, topB, _ := out.At(50, 10).RGBA()
	if topB != 0 {
		t.Fatal("overlay leaked outside its aspect-fit band")
	}
	_, _, midB, _ := out.At(50, 50).RGBA()
	if midB == 0 {
		t.Fatal("overlay missing from centered band")
	}
}

func TestParseWeatherInfo(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *Location
	}{
		{
			name:    "explicit coordinates win",
			content: `DWR_Area_ID="zzzzzz" latitude: 36.1627 longitude: -86.7816`,
			want:    &Location{Lat: 36.1627, Lon: -86.7816},
		},
		{
			name:    "known area id",
			content: `DWR_Area_ID="03g9rc"`,
			want:    &Location{Lat: 35.0456, Lon: -85.3097},
		},
		{
			name:    "unknown region",
			content: `DWR_Area_ID="97zzzz"`,
			want:    nil,
		},
		{
			name:    "nothing decodable",
			content: "DWR product header",
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseWeatherInfo(tt.content)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseWeatherInfo = %+v, want %+v", got, tt.want)
			}
			if got != nil && (math.Abs(got.Lat-tt.want.Lat) > 1e-6 || math.Abs(got.Lon-tt.want.Lon) > 1e-6) {
				t.Fatalf("ParseWeatherInfo = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeAreaIDPrefixHeuristic(t *testing.T) {
	loc, ok := decodeAreaID("03b2xx")
	if !ok {
		t.Fatal("southeast prefix should decode")
	}
	if loc.Lat < 34 || loc.Lat > 37 || loc.Lon > -84 || loc.Lon < -87 {
		t.Fatalf("implausible region estimate: %+v", loc)
	}
}

func TestBaseMapFetch(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ".png") {
			http.NotFound(w, r)
			return
		}
		hits++
		png.Encode(w, solid(256, 256, color.RGBA{G: 120, A: 255}))
	}))
	defer srv.Close()

	f := NewBaseMapFetcher(srv.Client(), nil)
	f.SetTileURL(srv.URL)
	img, err := f.Fetch(context.Background(), &Location{Lat: 35.0, Lon: -85.0})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if hits != 9 {
		t.Fatalf("tile requests = %d, want 9", hits)
	}
	if b := img.Bounds(); b.Dx() != baseMapSize || b.Dy() != baseMapSize {
		t.Fatalf("bounds = %v", b)
	}
}

func TestBaseMapFetchAllTilesFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewBaseMapFetcher(srv.Client(), nil)
	f.SetTileURL(srv.URL)
	if _, err := f.Fetch(context.Background(), nil); err == nil {
		t.Fatal("expected error when every tile fails")
	}
}

func TestPlaceholderDimensions(t *testing.T) {
	img := Placeholder()
	if b := img.Bounds(); b.Dx() != baseMapSize || b.Dy() != baseMapSize {
		t.Fatalf("bounds = %v", b)
	}
}
