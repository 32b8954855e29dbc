package store

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/stashcast/stashcast/internal/apperr"
)

// Store wraps the GORM handle to the embedded SQLite database.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open opens (creating if absent) the SQLite file at path and runs
// AutoMigrate for all three tables, spec §4.8. Foreign key enforcement
// is off by default per SQLite connection, which would otherwise leave
// segments/subtitle_tracks rows behind an ON DELETE CASCADE; withForeignKeys
// forces it on so DeleteVideo's single-row delete actually cascades.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigInvalid, err, "unable to open metadata store")
	}

	if err := db.AutoMigrate(&Video{}, &Segment{}, &SubtitleTrack{}); err != nil {
		return nil, apperr.Wrap(apperr.ConfigInvalid, err, "unable to migrate metadata store schema")
	}

	return &Store{db: db, logger: log.With().Str("module", "store").Logger()}, nil
}

// withForeignKeys appends a foreign-key-enforcement DSN parameter to path
// unless one is already present, so callers passing a bare file path get
// the same _fk=1 behavior the test suite opts into explicitly.
func withForeignKeys(path string) string {
	if strings.Contains(path, "_fk=") || strings.Contains(path, "_foreign_keys=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_fk=1"
}

// CreateProcessingVideo inserts a new videos row in status "processing",
// spec §3 "Lifecycle".
func (s *Store) CreateProcessingVideo(ctx context.Context, v *Video) error {
	v.Status = StatusProcessing
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, err, "unable to create video row")
	}
	return nil
}

// InsertSegment records one successful segment upload as a single-row
// insert inside its own short transaction, spec §4.2 "Commit order".
func (s *Store) InsertSegment(ctx context.Context, seg *Segment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(seg).Error
	})
	if err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, err, "unable to insert segment row")
	}
	return nil
}

// InsertSubtitleTrack records one uploaded subtitle track.
func (s *Store) InsertSubtitleTrack(ctx context.Context, track *SubtitleTrack) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(track).Error
	})
	if err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, err, "unable to insert subtitle track row")
	}
	return nil
}

// Activate marks a video active in a final transaction once every segment
// insert has succeeded, spec §4.2 "the ingest is only marked active once
// all inserts succeed and the videos row is updated in a final
// transaction". durationSecs, container, videoCodec, and audioCodec come
// from the probe the planner ran; without them total_duration stays 0 and
// the §8 duration-sum invariant is unenforceable.
func (s *Store) Activate(ctx context.Context, videoID string, totalSegments int, totalBytes int64, durationSecs float64, container, videoCodec, audioCodec string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Video{}).Where("video_id = ?", videoID).Updates(map[string]interface{}{
			"status":         StatusActive,
			"total_segments": totalSegments,
			"total_bytes":    totalBytes,
			"duration_secs":  durationSecs,
			"container":      container,
			"video_codec":    videoCodec,
			"audio_codec":    audioCodec,
		}).Error
	})
	if err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, err, "unable to activate video")
	}
	return nil
}

// MarkError transitions a video to status "error", retaining the row for
// diagnostics, spec §3 "Lifecycle".
func (s *Store) MarkError(ctx context.Context, videoID string, detail string) error {
	return s.db.WithContext(ctx).Model(&Video{}).Where("video_id = ?", videoID).
		Updates(map[string]interface{}{"status": StatusError, "error_detail": detail}).Error
}

// GetVideo loads a video row plus its segments and subtitle tracks.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	var v Video
	err := s.db.WithContext(ctx).
		Preload("Segments", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal ASC") }).
		Preload("SubtitleTracks").
		Where("video_id = ?", videoID).First(&v).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "video not found")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVideos returns a page of videos ordered by most recently created,
// spec §4.5 "GET /api/videos".
func (s *Store) ListVideos(ctx context.Context, offset, limit int) ([]Video, int64, error) {
	var videos []Video
	var total int64

	if err := s.db.WithContext(ctx).Model(&Video{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := s.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&videos).Error
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// ListProcessingVideos returns every video still in status "processing",
// for the Catalog Coordinator's resume-on-startup scan, spec §4.9.
func (s *Store) ListProcessingVideos(ctx context.Context) ([]Video, error) {
	var videos []Video
	err := s.db.WithContext(ctx).Where("status = ?", StatusProcessing).Find(&videos).Error
	return videos, err
}

// GetSegment loads one segment row by (video_id, ordinal), including the
// account_id/handle the segment was uploaded with, which the retrieval
// path's isolation contract of spec §4.2 depends on.
func (s *Store) GetSegment(ctx context.Context, videoID string, ordinal int) (*Segment, error) {
	var seg Segment
	err := s.db.WithContext(ctx).Where("video_id = ? AND ordinal = ?", videoID, ordinal).First(&seg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "segment not found")
	}
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

// GetSegmentByFilename loads one segment row by its stored filename, for
// the streaming server's segment route which addresses segments by name
// rather than ordinal, spec §4.5.
func (s *Store) GetSegmentByFilename(ctx context.Context, videoID, filename string) (*Segment, error) {
	var seg Segment
	err := s.db.WithContext(ctx).Where("video_id = ? AND filename = ?", videoID, filename).First(&seg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "segment not found")
	}
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

// GetSubtitleTrack loads one subtitle track by (video_id, language).
func (s *Store) GetSubtitleTrack(ctx context.Context, videoID, language string) (*SubtitleTrack, error) {
	var track SubtitleTrack
	err := s.db.WithContext(ctx).Where("video_id = ? AND language = ?", videoID, language).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "subtitle track not found")
	}
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// DeleteVideo removes the video row and, via ON DELETE CASCADE, its
// segments and subtitle tracks, before any best-effort remote deletes
// run, spec §3 "A delete transaction removes the database rows before
// best-effort remote deletes".
func (s *Store) DeleteVideo(ctx context.Context, videoID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("video_id = ?", videoID).Delete(&Video{}).Error
	})
	if err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, err, "unable to delete video")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
