package maps

import (
	"image"
	"image/color"
	"image/draw"
	"regexp"
	"strconv"

	xdraw "golang.org/x/image/draw"
)

// overlayAlpha is the fixed opacity for the radar layer so the base map stays
// legible underneath (~70 %).
const overlayAlpha = 178

// Location is a geographic point decoded from the weather info service.
type Location struct {
	Lat float64
	Lon float64
}

// CompositeOverlay paints the radar overlay centered on a copy of the base
// map, scaled to fit the base while preserving aspect ratio.
func CompositeOverlay(base, overlay image.Image) image.Image {
	bb := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	draw.Draw(out, out.Bounds(), base, bb.Min, draw.Src)

	ob := overlay.Bounds()
	if ob.Dx() == 0 || ob.Dy() == 0 {
		return out
	}
	scaleW, scaleH := fitWithin(ob.Dx(), ob.Dy(), bb.Dx(), bb.Dy())
	scaled := image.NewRGBA(image.Rect(0, 0, scaleW, scaleH))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), overlay, ob, xdraw.Over, nil)

	x := (bb.Dx() - scaleW) / 2
	y := (bb.Dy() - scaleH) / 2
	mask := image.NewUniform(color.Alpha{A: overlayAlpha})
	draw.DrawMask(out, image.Rect(x, y, x+scaleW, y+scaleH), scaled, image.Point{}, mask, image.Point{}, draw.Over)
	return out
}

// fitWithin scales (w,h) down or up to the largest size fitting inside
// (maxW,maxH) with the aspect ratio preserved.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w*maxH > h*maxW {
		return maxW, h * maxW / w
	}
	return w * maxH / h, maxH
}

var (
	areaIDRe = regexp.MustCompile(`DWR_Area_ID[=:\s]*"?([a-zA-Z0-9]+)"?`)
	latRe    = regexp.MustCompile(`(?i)lat[itude]*[:\s]+(-?\d+\.?\d*)`)
	lonRe    = regexp.MustCompile(`(?i)lon[gitude]*[:\s]+(-?\d+\.?\d*)`)
)

// ParseWeatherInfo extracts a location from a DWRI weather descriptor. It
// prefers explicit latitude/longitude fields, then falls back to the
// best-effort area-ID table. Returns nil when nothing decodable is present.
func ParseWeatherInfo(content string) *Location {
	if la, lo := latRe.FindStringSubmatch(content), lonRe.FindStringSubmatch(content); la != nil && lo != nil {
		lat, err1 := strconv.ParseFloat(la[1], 64)
		lon, err2 := strconv.ParseFloat(lo[1], 64)
		if err1 == nil && err2 == nil {
			return &Location{Lat: lat, Lon: lon}
		}
	}
	if m := areaIDRe.FindStringSubmatch(content); m != nil {
		if loc, ok := decodeAreaID(m[1]); ok {
			return &loc
		}
	}
	return nil
}

// areaLocations maps observed DWR area identifiers to approximate
// coordinates. There is no authoritative decoding scheme; entries are added
// as broadcasts are observed.
var areaLocations = map[string]Location{
	"03g9rc": {35.0456, -85.3097}, // Chattanooga
	"03g9rb": {35.1495, -85.2327}, // Cleveland, TN
	"03g9ra": {34.9873, -85.2552}, // north Georgia
}

// decodeAreaID resolves an area ID via the lookup table, then falls back to a
// rough regional estimate for the "03" (southeast US) prefix. Best effort
// only; callers must tolerate a miss.
func decodeAreaID(id string) (Location, bool) {
	if loc, ok := areaLocations[id]; ok {
		return loc, true
	}
	if len(id) >= 6 && id[:2] == "03" {
		loc := Location{Lat: 35.0, Lon: -85.0}
		grid := id[2:4]
		if grid[0] >= 'a' && grid[0] <= 'z' {
			loc.Lat += float64(grid[0]-'a') * 0.05
		}
		if grid[1] >= '0' && grid[1] <= '9' {
			loc.Lon -= float64(grid[1]-'0') * 0.1
		}
		return loc, true
	}
	return Location{}, false
}
