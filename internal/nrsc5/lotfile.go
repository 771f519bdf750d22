package nrsc5

import (
	"path"
	"strings"
)

// AssetKind classifies a LOT file name into the data service it belongs to.
type AssetKind int

const (
	// AssetUnknown covers files the application has no use for.
	AssetUnknown AssetKind = iota
	// AssetTrafficTile is one fragment of the 3x3 traffic map grid.
	AssetTrafficTile
	// AssetWeatherInfo is the textual weather descriptor (location data).
	AssetWeatherInfo
	// AssetWeatherOverlay is the weather radar image composited over a base map.
	AssetWeatherOverlay
	// AssetStationLogo is the station's branding logo.
	AssetStationLogo
	// AssetTrackArt is album art for the currently playing song.
	AssetTrackArt
)

func (k AssetKind) String() string {
	switch k {
	case AssetTrafficTile:
		return "traffic-tile"
	case AssetWeatherInfo:
		return "weather-info"
	case AssetWeatherOverlay:
		return "weather-overlay"
	case AssetStationLogo:
		return "station-logo"
	case AssetTrackArt:
		return "track-art"
	}
	return "unknown"
}

// artPorts maps the HD sub-program index (0-3) to the AAS service ports that
// carry its album art. These are NRSC-5 service conventions, not ours.
var artPorts = map[int][]string{
	0: {"0810", "0010"}, // HD1
	1: {"1810", "0011"}, // HD2
	2: {"5103", "0012"}, // HD3
	3: {"5104", "0013"}, // HD4
}

// logoPort is reserved for station logo delivery on most broadcasts.
const logoPort = "5103"

// logoMarker is the marker substring used by the common logo delivery service.
const logoMarker = "SLWRXR"

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

// IsImageFile reports whether the file name carries a displayable image
// extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

// ClassifyAsset decides what a LOT file announcement is for. hdProgram is the
// currently tuned sub-program (0-3); album art announced on another program's
// port is ignored rather than shown for the wrong service. Port may be empty
// when the announcement came in the legacy log form, in which case the port
// gate is skipped.
func ClassifyAsset(name, port string, hdProgram int) AssetKind {
	if strings.Contains(name, "DWRI_") {
		return AssetWeatherInfo
	}
	if !IsImageFile(name) {
		return AssetUnknown
	}
	if strings.Contains(name, "TMT_") {
		return AssetTrafficTile
	}
	if strings.Contains(name, "DWRO_") {
		return AssetWeatherOverlay
	}

	lower := strings.ToLower(name)
	likelyLogo := strings.Contains(name, "$$") ||
		strings.Contains(name, logoMarker) ||
		strings.Contains(lower, "_logo") ||
		port == logoPort
	if likelyLogo {
		// An HD3 logo port announcement while tuned to HD1 belongs to a
		// different service entirely.
		if hdProgram == 0 && port == logoPort {
			return AssetUnknown
		}
		return AssetStationLogo
	}

	if port == "" {
		return AssetTrackArt
	}
	for _, p := range artPorts[hdProgram] {
		if p == port {
			return AssetTrackArt
		}
	}
	return AssetUnknown
}
