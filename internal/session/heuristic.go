package session

import (
	"regexp"
	"strings"
)

// stationPhrases are marker substrings that identify non-music content:
// commercials, promos, jingles, data-service announcements, and station
// identification. Any match wins, regardless of surrounding text.
var stationPhrases = []string{
	"commercial", "advertisement", "promo", "jingle", "weather", "traffic",
	"coming up", "you're listening", "stay tuned", "call us", "text us",
	"win", "contest", "hd1", "hd2", "hd3", "hd4",
	"station id", "station identification",
	"#1", "us-", "us101", "us 101",
}

// stationPatterns match structural station branding: bare call signs,
// frequencies, genre+band names, and slogan templates.
var stationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^w[a-z]{2,3}\s+`),                                // W*** call signs
	regexp.MustCompile(`^k[a-z]{2,3}\s+`),                                // K*** call signs
	regexp.MustCompile(`^(kiss|rock|country|hits|classic|news|talk)\s*(fm|am)?$`),
	regexp.MustCompile(`^\d{2,3}\.\d\s*(fm|am)?$`),                       // bare frequency
	regexp.MustCompile(`'?s?\s+(rock|country|hits|classic)\s+station`),   // "<city>'s X station"
	regexp.MustCompile(`^(rock|kiss|country|hits|classic)\s+\d{2,3}\.\d$`),
	regexp.MustCompile(`^\w{3,4}\s+\w{2,3}-?\d{2,3}`),                    // "WUSY US-101"
	regexp.MustCompile(`^us-?\d{2,3}`),
	regexp.MustCompile(`^\w{3,4}\s+\d{2,3}\.\d`),                         // call sign + frequency
}

// LooksLikeStation reports whether text reads as station branding or
// announcement content rather than real song metadata. Ambiguous text is
// deliberately resolved toward "station": false positives cost an unneeded
// fallback visual, false negatives fetch art for a jingle.
func LooksLikeStation(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, phrase := range stationPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	for _, re := range stationPatterns {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}
