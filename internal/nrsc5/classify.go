// Package nrsc5 understands the textual log dialect emitted by the nrsc5
// HD Radio decoder and turns raw lines into typed field updates.
package nrsc5

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldUpdate is one typed fact extracted from a decoder log line. The set of
// implementations is closed; consumers switch over the concrete types.
type FieldUpdate interface {
	isFieldUpdate()
}

// Title is the PAD song title.
type Title string

// Artist is the PAD artist name.
type Artist string

// Album is the PAD album name.
type Album string

// StationName is the broadcast station identifier (e.g. "WKXY").
type StationName string

// Slogan is the station's advertised slogan text.
type Slogan string

// Genre is the station-reported programme genre.
type Genre string

// Message is a free-form station message or alert.
type Message string

// BitrateKbps is the audio bit rate as reported by the decoder.
type BitrateKbps float64

// LotFileAnnounced reports that the decoder has begun writing a LOT data
// service file. Port is empty for the legacy announcement form.
type LotFileAnnounced struct {
	Name string
	Port string
}

func (Title) isFieldUpdate()            {}
func (Artist) isFieldUpdate()           {}
func (Album) isFieldUpdate()            {}
func (StationName) isFieldUpdate()      {}
func (Slogan) isFieldUpdate()           {}
func (Genre) isFieldUpdate()            {}
func (Message) isFieldUpdate()          {}
func (BitrateKbps) isFieldUpdate()      {}
func (LotFileAnnounced) isFieldUpdate() {}

var (
	timestampRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2} `)
	titleRe     = regexp.MustCompile(`(?i)\bTitle:\s*(.+)`)
	artistRe    = regexp.MustCompile(`(?i)\bArtist:\s*(.+)`)
	albumRe     = regexp.MustCompile(`(?i)\bAlbum:\s*(.+)`)
	sloganRe    = regexp.MustCompile(`(?i)\bSlogan:\s*(.+)`)
	stationRe   = regexp.MustCompile(`(?i)\bStation name:\s*(.+)`)
	genreRe     = regexp.MustCompile(`(?i)\bGenre:\s*(.+)`)
	messageRe   = regexp.MustCompile(`(?i)\b(?:Message|Alert|Info):\s*(.+)`)
	bitrateRe   = regexp.MustCompile(`(?i)\bBitrate:\s*(\d+(?:\.\d+)?)\s*kbps`)
	audioRateRe = regexp.MustCompile(`(?i)\bAudio bit rate:\s*(\d+(?:\.\d+)?)\s*kbps`)
	lotRe       = regexp.MustCompile(`port=(\d+).*?name=(\S+)`)
	lotLegacyRe = regexp.MustCompile(`Writing LOT file '([^']+)'`)
)

// Classify parses one raw decoder line into zero or more field updates. The
// patterns are tested independently, so a line may in principle yield several
// updates. Unmatched lines simply return nil; they are never an error.
func Classify(line string) []FieldUpdate {
	line = timestampRe.ReplaceAllString(line, "")

	var out []FieldUpdate
	if m := stationRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, StationName(v))
		}
	}
	if m := sloganRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, Slogan(v))
		}
	}
	if m := genreRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, Genre(v))
		}
	}
	if m := messageRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, Message(v))
		}
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, BitrateKbps(f))
		}
	} else if m := audioRateRe.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, BitrateKbps(f))
		}
	}
	if m := titleRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, Title(v))
		}
	}
	if m := artistRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, Artist(v))
		}
	}
	if m := albumRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, Album(v))
		}
	}
	if strings.Contains(line, "LOT file:") {
		if m := lotRe.FindStringSubmatch(line); m != nil {
			out = append(out, LotFileAnnounced{Name: strings.TrimSpace(m[2]), Port: m[1]})
		}
	} else if m := lotLegacyRe.FindStringSubmatch(line); m != nil {
		out = append(out, LotFileAnnounced{Name: strings.TrimSpace(m[1])})
	}
	return out
}
