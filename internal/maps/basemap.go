package maps

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	baseMapSize = 600
	osmTileSize = 256
	osmZoom     = 8 // regional view, roughly 200 mile radius

	defaultTileURL = "https://tile.openstreetmap.org"
	osmUserAgent   = "SDR-Boombox/2.0 (+https://github.com/edward-ap/boombox)"
)

// defaultLocation is the continental US centroid, used before any weather
// info has named a region.
var defaultLocation = Location{Lat: 39.8283, Lon: -98.5795}

// BaseMapFetcher retrieves slippy-map tiles around a location to serve as the
// backdrop for the weather radar overlay.
type BaseMapFetcher struct {
	client  *http.Client
	log     hclog.Logger
	tileURL string
}

// NewBaseMapFetcher builds a fetcher; a nil client falls back to
// http.DefaultClient.
func NewBaseMapFetcher(client *http.Client, log hclog.Logger) *BaseMapFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &BaseMapFetcher{client: client, log: log, tileURL: defaultTileURL}
}

// SetTileURL overrides the tile server endpoint, used by tests.
func (f *BaseMapFetcher) SetTileURL(u string) { f.tileURL = u }

// Fetch composes a 3x3 block of map tiles centered on loc, scaled to the
// standard base map size. A nil loc uses the US default. Individual tile
// failures leave gaps; only a fully failed fetch returns an error.
func (f *BaseMapFetcher) Fetch(ctx context.Context, loc *Location) (image.Image, error) {
	if loc == nil {
		loc = &defaultLocation
	}
	cx, cy := tileAt(loc.Lat, loc.Lon, osmZoom)

	combined := image.NewRGBA(image.Rect(0, 0, osmTileSize*3, osmTileSize*3))
	draw.Draw(combined, combined.Bounds(), image.NewUniform(color.NRGBA{20, 30, 40, 255}), image.Point{}, draw.Src)

	got := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			tile, err := f.fetchTile(ctx, cx+dx, cy+dy)
			if err != nil {
				f.log.Debug("map tile fetch failed", "dx", dx, "dy", dy, "error", err)
				continue
			}
			x := (dx + 1) * osmTileSize
			y := (dy + 1) * osmTileSize
			draw.Draw(combined, image.Rect(x, y, x+osmTileSize, y+osmTileSize), tile, tile.Bounds().Min, draw.Src)
			got++
		}
	}
	if got == 0 {
		return nil, fmt.Errorf("no map tiles fetched for %.4f,%.4f", loc.Lat, loc.Lon)
	}

	out := image.NewRGBA(image.Rect(0, 0, baseMapSize, baseMapSize))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), combined, combined.Bounds(), xdraw.Src, nil)
	return out, nil
}

func (f *BaseMapFetcher) fetchTile(ctx context.Context, x, y int) (image.Image, error) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/%d/%d/%d.png", f.tileURL, osmZoom, x, y)
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", osmUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, 1<<20))
	return img, err
}

// tileAt converts coordinates to slippy-map tile numbers at the given zoom.
func tileAt(lat, lon float64, zoom int) (int, int) {
	latRad := lat * math.Pi / 180
	n := math.Exp2(float64(zoom))
	x := int((lon + 180.0) / 360.0 * n)
	y := int((1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n)
	return x, y
}

// Placeholder renders the flat fallback base map used when no tiles could be
// fetched: dark water background, a faint grid, and a caption.
func Placeholder() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, baseMapSize, baseMapSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{20, 30, 40, 255}), image.Point{}, draw.Src)

	grid := color.NRGBA{50, 70, 50, 255}
	for x := 50; x < baseMapSize; x += 50 {
		for y := 0; y < baseMapSize; y++ {
			img.SetNRGBA(x, y, grid)
		}
	}
	for y := 50; y < baseMapSize; y += 50 {
		for x := 0; x < baseMapSize; x++ {
			img.SetNRGBA(x, y, grid)
		}
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{150, 150, 150, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, baseMapSize-10),
	}
	d.DrawString("Base map for weather overlay")
	return img
}
