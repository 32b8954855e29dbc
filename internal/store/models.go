// Package store is the embedded relational Metadata Store, spec §4.8: a
// single SQLite file accessed through GORM, holding the videos, segments,
// and subtitle_tracks tables of spec §3.
package store

import "time"

// Status enumerates a video's lifecycle state, spec §3 "Lifecycle".
type Status string

const (
	StatusProcessing Status = "processing"
	StatusActive      Status = "active"
	StatusError       Status = "error"
)

// Video is the videos table, spec §3 "Video".
type Video struct {
	VideoID       string `gorm:"primaryKey;column:video_id"`
	Filename      string
	Container     string
	VideoCodec    string
	AudioCodec    string
	DurationSecs  float64
	TotalSegments int
	TotalBytes    int64
	Status        Status `gorm:"index"`
	ErrorDetail   string

	Segments       []Segment       `gorm:"constraint:OnDelete:CASCADE;foreignKey:VideoID;references:VideoID"`
	SubtitleTracks []SubtitleTrack `gorm:"constraint:OnDelete:CASCADE;foreignKey:VideoID;references:VideoID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Segment is the segments table, spec §3 "Segment". Rows exist only after
// a successful upload commit (§4.2 "Commit order").
type Segment struct {
	VideoID   string `gorm:"primaryKey;column:video_id"`
	Ordinal   int    `gorm:"primaryKey;column:ordinal"`
	Filename  string
	Duration  float64
	Bytes     int64
	Handle    string
	AccountID string

	CreatedAt time.Time
}

// SubtitleTrack is the subtitle_tracks table, spec §3 "Subtitle Track".
type SubtitleTrack struct {
	VideoID           string `gorm:"primaryKey;column:video_id"`
	TrackIndex        int    `gorm:"primaryKey;column:track_index"`
	Language          string
	Title             string
	Codec             string
	IsDefault         bool
	IsForced          bool
	IsHearingImpaired bool
	Handle            string
	AccountID         string

	CreatedAt time.Time
}
