package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndLastPlay(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddPlay(SongPlay{
		Title: "Midnight Drive", Artist: "The Long Haul", Album: "Long Roads",
		Station: "WKXY", FreqMHz: 104.7,
	}))

	play, err := s.LastPlay("The Long Haul", "Midnight Drive")
	require.NoError(t, err)
	require.NotNil(t, play)
	assert.NotEmpty(t, play.ID)
	assert.Equal(t, "WKXY", play.Station)
	assert.WithinDuration(t, time.Now(), play.PlayedAt, 5*time.Second)

	missing, err := s.LastPlay("Nobody", "Nothing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLastPlayReturnsNewest(t *testing.T) {
	s := newTestStore(t)
	old := time.Now().Add(-2 * time.Hour)

	require.NoError(t, s.AddPlay(SongPlay{
		Title: "Midnight Drive", Artist: "The Long Haul", Station: "WKXY", PlayedAt: old,
	}))
	require.NoError(t, s.AddPlay(SongPlay{
		Title: "Midnight Drive", Artist: "The Long Haul", Station: "WABC",
	}))

	play, err := s.LastPlay("The Long Haul", "Midnight Drive")
	require.NoError(t, err)
	require.NotNil(t, play)
	assert.Equal(t, "WABC", play.Station)
}

func TestRecentPlaysOrdering(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddPlay(SongPlay{
			Title:    "Song",
			Artist:   string(rune('A' + i)),
			PlayedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	plays, err := s.RecentPlays(3)
	require.NoError(t, err)
	require.Len(t, plays, 3)
	assert.Equal(t, "E", plays[0].Artist)
	assert.Equal(t, "C", plays[2].Artist)
}

func TestTopArtists(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddPlay(SongPlay{Title: "S", Artist: "The Long Haul"}))
	}
	require.NoError(t, s.AddPlay(SongPlay{Title: "S", Artist: "Riverbend"}))
	require.NoError(t, s.AddPlay(SongPlay{Title: "S", Artist: ""}))

	top, err := s.TopArtists(5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "The Long Haul", top[0].Artist)
	assert.EqualValues(t, 3, top[0].Count)
}

func TestStationCount(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPlay(SongPlay{Title: "A", Artist: "X", Station: "WKXY"}))
	require.NoError(t, s.AddPlay(SongPlay{Title: "B", Artist: "Y", Station: "WKXY"}))
	require.NoError(t, s.AddPlay(SongPlay{Title: "C", Artist: "Z", Station: "WABC"}))

	n, err := s.StationCount("WKXY")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
