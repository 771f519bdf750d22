package session

import "testing"

func TestLooksLikeStation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"Midnight Drive", false},
		{"The Long Haul", false},
		{"Bohemian Rhapsody", false},
		{"Commercial Break", true},
		{"WKXY HD2", true},
		{"Station ID", true},
		{"Traffic on the 5s", true},
		{"Your Hits Station", true},
		{"103.7", true},
		{"103.7 FM", true},
		{"Rock 103.7", true},
		{"KISS FM", true},
		{"WUSY US-101", true},
		{"Chattanooga's Country Station", true},
		{"wkdf nashville", true}, // call sign followed by text
		{"Win a trip to Hawaii", true},
	}
	for _, tt := range tests {
		if got := LooksLikeStation(tt.text); got != tt.want {
			t.Errorf("LooksLikeStation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// Any configured marker phrase forces a station verdict regardless of the
// surrounding text.
func TestLooksLikeStationMarkerMonotonicity(t *testing.T) {
	for _, phrase := range []string{"commercial", "hd2", "jingle", "contest", "station id"} {
		for _, wrap := range []string{phrase, "before " + phrase, phrase + " after", "a " + phrase + " b"} {
			if !LooksLikeStation(wrap) {
				t.Errorf("LooksLikeStation(%q) = false, want true", wrap)
			}
		}
	}
}
