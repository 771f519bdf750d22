// Package stats keeps the append-only song-play history in a local sqlite
// database.
package stats

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// maxRetained bounds the history; the oldest rows beyond it are pruned.
const maxRetained = 10000

// SongPlay is one settled song observation.
type SongPlay struct {
	ID        string  `gorm:"primaryKey;size:36"`
	Title     string  `gorm:"size:512;index:idx_song,priority:2"`
	Artist    string  `gorm:"size:512;index:idx_song,priority:1"`
	Album     string  `gorm:"size:512"`
	Station   string  `gorm:"size:64"`
	FreqMHz   float64 `gorm:"index"`
	HDProgram int
	PlayedAt  time.Time `gorm:"index"`
}

// BeforeCreate assigns the row ID and timestamp.
func (p *SongPlay) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.PlayedAt.IsZero() {
		p.PlayedAt = time.Now()
	}
	return nil
}

// ArtistCount is one row of the top-artists report.
type ArtistCount struct {
	Artist string
	Count  int64
}

// Store wraps the history database.
type Store struct {
	db  *gorm.DB
	log hclog.Logger

	adds int
}

// Open connects to (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string, log hclog.Logger) (*Store, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	if err := db.AutoMigrate(&SongPlay{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stats database: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddPlay records one settled song, pruning old history periodically.
func (s *Store) AddPlay(play SongPlay) error {
	if err := s.db.Create(&play).Error; err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	s.adds++
	if s.adds%100 == 0 {
		s.prune()
	}
	return nil
}

func (s *Store) prune() {
	var count int64
	if err := s.db.Model(&SongPlay{}).Count(&count).Error; err != nil || count <= maxRetained {
		return
	}
	cutoff := SongPlay{}
	err := s.db.Order("played_at desc").Offset(maxRetained - 1).Limit(1).First(&cutoff).Error
	if err != nil {
		return
	}
	res := s.db.Where("played_at < ?", cutoff.PlayedAt).Delete(&SongPlay{})
	if res.Error == nil && res.RowsAffected > 0 {
		s.log.Debug("pruned play history", "removed", res.RowsAffected)
	}
}

// LastPlay returns the most recent play of the given song, or nil when it has
// never been heard.
func (s *Store) LastPlay(artist, title string) (*SongPlay, error) {
	var play SongPlay
	err := s.db.Where("artist = ? AND title = ?", artist, title).
		Order("played_at desc").First(&play).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &play, nil
}

// RecentPlays returns the newest plays, most recent first.
func (s *Store) RecentPlays(limit int) ([]SongPlay, error) {
	var plays []SongPlay
	err := s.db.Order("played_at desc").Limit(limit).Find(&plays).Error
	return plays, err
}

// TopArtists reports the most played artists across the whole history.
func (s *Store) TopArtists(limit int) ([]ArtistCount, error) {
	var out []ArtistCount
	err := s.db.Model(&SongPlay{}).
		Select("artist, count(*) as count").
		Where("artist <> ''").
		Group("artist").
		Order("count desc").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// StationCount returns how many plays were recorded for a station.
func (s *Store) StationCount(station string) (int64, error) {
	var count int64
	err := s.db.Model(&SongPlay{}).Where("station = ?", station).Count(&count).Error
	return count, err
}
