// Package store keeps enriched tracklists in a local SQLite database.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// ErrNotFound is returned when no tracklist is stored for a product.
var ErrNotFound = errors.New("tracklist not stored")

// EnrichedTrack is one stored track of an enriched tracklist.
type EnrichedTrack struct {
	gorm.Model

	DocumentID string `gorm:"uniqueIndex:idx_product_position;not null"`
	CommerceID string `gorm:"uniqueIndex:idx_product_position;not null"`
	Position   int    `gorm:"uniqueIndex:idx_product_position"`

	Title      string
	Artist     string
	DurationMs int64
}

// Store persists enriched tracklists.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open store %s", path)
	}
	return New(db)
}

// New creates a store on an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&EnrichedTrack{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate store")
	}
	return &Store{db: db}, nil
}

// Save replaces the stored tracklist of key.
func (s *Store) Save(ctx context.Context, key product.Key, tracks []track.Track) error {
	rows := make([]EnrichedTrack, len(tracks))
	for i, t := range tracks {
		rows[i] = EnrichedTrack{
			DocumentID: key.DocumentID,
			CommerceID: key.CommerceID,
			Position:   i,
			Title:      t.Title,
			Artist:     t.Artist,
			DurationMs: t.Duration.Milliseconds(),
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("document_id = ? AND commerce_id = ?", key.DocumentID, key.CommerceID).
			Delete(&EnrichedTrack{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save tracklist %s", key)
	}

	zlog.Debug().Msgf("store: tracklist saved: product=%s tracks=%d", key, len(tracks))
	return nil
}

// Load returns the stored tracklist of key in position order.
func (s *Store) Load(ctx context.Context, key product.Key) ([]track.Track, error) {
	var rows []EnrichedTrack
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND commerce_id = ?", key.DocumentID, key.CommerceID).
		Order("position asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tracklist %s", key)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	tracks := make([]track.Track, len(rows))
	for i, r := range rows {
		tracks[i] = track.Track{
			Title:      r.Title,
			Artist:     r.Artist,
			Duration:   time.Duration(r.DurationMs) * time.Millisecond,
			ProductID:  r.DocumentID,
			CommerceID: r.CommerceID,
			TrackIndex: r.Position,
		}
	}
	return tracks, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get store connection")
	}
	return sqlDB.Close()
}
