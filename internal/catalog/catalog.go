// Package catalog is the Catalog Coordinator, spec §4.9: it owns the
// ingest, delete, and resume-on-startup jobs, gluing the planner,
// distributor, blob client, and metadata store together.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/distributor"
	"github.com/stashcast/stashcast/internal/planner"
	"github.com/stashcast/stashcast/internal/store"
)

// Downloader is the subset of the Remote Blob Client the coordinator
// needs for best-effort remote cleanup.
type Downloader interface {
	Delete(ctx context.Context, accountID, handle string) error
}

// Coordinator drives the ingest/delete/resume lifecycle of spec §4.9.
type Coordinator struct {
	store       *store.Store
	planner     *planner.Planner
	distributor *distributor.Distributor
	blob        Downloader
	scratchRoot string
	logger      zerolog.Logger

	locks sync.Map // video_id -> *sync.Mutex, Open Question (b)
}

func New(st *store.Store, pl *planner.Planner, dist *distributor.Distributor, blob Downloader, scratchRoot string) *Coordinator {
	return &Coordinator{
		store:       st,
		planner:     pl,
		distributor: dist,
		blob:        blob,
		scratchRoot: scratchRoot,
		logger:      log.With().Str("module", "catalog").Logger(),
	}
}

// lockVideo implements Open Question (b): concurrent ingest of the same
// video_id is rejected with CONFLICT rather than queued or merged.
func (c *Coordinator) lockVideo(videoID string) (func(), error) {
	mu := &sync.Mutex{}
	actual, _ := c.locks.LoadOrStore(videoID, mu)
	lock := actual.(*sync.Mutex)

	if !lock.TryLock() {
		return nil, apperr.New(apperr.Conflict, fmt.Sprintf("video %q is already being ingested", videoID))
	}

	return func() {
		lock.Unlock()
		c.locks.Delete(videoID)
	}, nil
}

// deriveVideoID sanitizes filename into a stable id, suffixing on
// collision, spec §3 "Video".
func (c *Coordinator) deriveVideoID(ctx context.Context, filename string) string {
	base := sanitizeID(filename)
	candidate := base
	for i := 1; ; i++ {
		if _, err := c.store.GetVideo(ctx, candidate); apperr.KindOf(err) == apperr.NotFound {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// Phase names one step of the ingest pipeline, reported through the
// optional callback given to Ingest, spec §4.5 "Upload handling":
// "an upload job transitions through phases receiving -> probing ->
// planning -> uploading -> committing -> done|error".
type Phase string

const (
	PhaseProbing    Phase = "probing"
	PhasePlanning   Phase = "planning"
	PhaseUploading  Phase = "uploading"
	PhaseCommitting Phase = "committing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// Ingest runs probe->plan->upload->commit->cleanup for one uploaded
// source file, spec §4.9 "Ingest". report, if non-nil, is called as the
// job crosses each phase boundary; the "receiving" phase happens before
// Ingest is called, while the request body is still being written to
// sourcePath.
func (c *Coordinator) Ingest(ctx context.Context, sourcePath, originalFilename string, opts planner.Options, report func(Phase)) (string, error) {
	if report == nil {
		report = func(Phase) {}
	}

	videoID := c.deriveVideoID(ctx, originalFilename)

	unlock, err := c.lockVideo(videoID)
	if err != nil {
		return "", err
	}
	defer unlock()

	workDir := filepath.Join(c.scratchRoot, videoID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.TranscodeFailed, err, "unable to create scratch directory")
	}

	video := &store.Video{VideoID: videoID, Filename: originalFilename}
	if err := c.store.CreateProcessingVideo(ctx, video); err != nil {
		os.RemoveAll(workDir)
		return "", err
	}

	if err := c.runIngest(ctx, videoID, sourcePath, workDir, opts, report); err != nil {
		c.logger.Error().Err(err).Str("video_id", videoID).Msg("ingest failed, marking video error")
		_ = c.store.MarkError(ctx, videoID, string(apperr.KindOf(err)))
		os.RemoveAll(workDir)
		report(PhaseError)
		return videoID, err
	}

	os.RemoveAll(workDir)
	report(PhaseDone)
	return videoID, nil
}

func (c *Coordinator) runIngest(ctx context.Context, videoID, sourcePath, workDir string, opts planner.Options, report func(Phase)) error {
	report(PhaseProbing)
	report(PhasePlanning)
	result, err := c.planner.Plan(ctx, sourcePath, workDir, opts)
	if err != nil {
		return err
	}
	if result.FullTranscode {
		return apperr.New(apperr.TranscodeFailed, "full-transcode path requires a pre-transcoded source; not supported by this ingest entry point")
	}

	sources := make([]distributor.AssignmentSource, len(result.Segments))
	for i, seg := range result.Segments {
		sources[i] = distributor.AssignmentSource{Ordinal: seg.Ordinal, Path: seg.Path, Filename: seg.Filename, Duration: seg.Duration}
	}

	report(PhaseUploading)
	assignments, err := c.distributor.DistributeSegments(ctx, videoID, sources)
	if err != nil {
		c.rollbackPartialUpload(context.Background(), videoID, assignments)
		return err
	}

	report(PhaseCommitting)
	var totalBytes int64
	var totalDuration float64
	for i, a := range assignments {
		seg := result.Segments[i]
		if err := c.store.InsertSegment(ctx, &store.Segment{
			VideoID:   videoID,
			Ordinal:   a.Ordinal,
			Filename:  seg.Filename,
			Duration:  seg.Duration,
			Bytes:     a.Bytes,
			Handle:    a.Handle,
			AccountID: a.AccountID,
		}); err != nil {
			c.rollbackPartialUpload(context.Background(), videoID, assignments)
			return err
		}
		totalBytes += a.Bytes
		totalDuration += seg.Duration
	}

	c.uploadSubtitles(ctx, videoID, result.Subtitles)

	var container, videoCodec, audioCodec string
	if result.Info != nil {
		container = result.Info.Container
		videoCodec = result.Info.VideoCodec
		audioCodec = result.Info.AudioCodec
	}

	if err := c.store.Activate(ctx, videoID, len(assignments), totalBytes, totalDuration, container, videoCodec, audioCodec); err != nil {
		return err
	}

	return nil
}

// uploadSubtitles uploads and records each extracted subtitle track,
// spec §3 "a video owns its segments and subtitle tracks". A single
// track's upload or insert failure only drops that track: the video
// still activates with its segments, since a missing subtitle track does
// not make a video unplayable.
func (c *Coordinator) uploadSubtitles(ctx context.Context, videoID string, subtitles []planner.SubtitleFile) {
	for i, sub := range subtitles {
		ordinal := -(i + 1) // negative ordinals keep subtitle uploads out of the segment hash bucket sequence
		assignment, err := c.distributor.DistributeOne(ctx, videoID, ordinal, distributor.AssignmentSource{
			Ordinal:  ordinal,
			Path:     sub.Path,
			Filename: sub.Filename,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Str("language", sub.Language).Msg("subtitle upload failed, skipping track")
			continue
		}

		if err := c.store.InsertSubtitleTrack(ctx, &store.SubtitleTrack{
			VideoID:           videoID,
			TrackIndex:        i,
			Language:          sub.Language,
			Title:             sub.Title,
			Codec:             sub.Codec,
			IsDefault:         sub.IsDefault,
			IsForced:          sub.IsForced,
			IsHearingImpaired: sub.IsHearingImpaired,
			Handle:            assignment.Handle,
			AccountID:         assignment.AccountID,
		}); err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Str("language", sub.Language).Msg("unable to record subtitle track, skipping")
		}
	}
}

// rollbackPartialUpload best-effort deletes the remote objects of the
// given assignments for a failed ingest. It does not delete segment rows
// that were already inserted; those stay attached to the video row.
func (c *Coordinator) rollbackPartialUpload(ctx context.Context, videoID string, assignments []distributor.Assignment) {
	for _, a := range assignments {
		if err := c.blob.Delete(ctx, a.AccountID, a.Handle); err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Str("handle", a.Handle).Msg("best-effort remote cleanup failed")
		}
	}
}

// Delete removes a video's database rows in one transaction, then
// spawns best-effort remote deletions, spec §4.9 "Delete".
func (c *Coordinator) Delete(ctx context.Context, videoID string) error {
	video, err := c.store.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}

	handles := make([]struct{ AccountID, Handle string }, 0, len(video.Segments)+len(video.SubtitleTracks))
	for _, s := range video.Segments {
		handles = append(handles, struct{ AccountID, Handle string }{s.AccountID, s.Handle})
	}
	for _, s := range video.SubtitleTracks {
		handles = append(handles, struct{ AccountID, Handle string }{s.AccountID, s.Handle})
	}

	if err := c.store.DeleteVideo(ctx, videoID); err != nil {
		return err
	}

	go func() {
		bgCtx := context.Background()
		for _, h := range handles {
			if err := c.blob.Delete(bgCtx, h.AccountID, h.Handle); err != nil {
				c.logger.Warn().Err(err).Str("video_id", videoID).Str("handle", h.Handle).Msg("remote delete failed; database is authoritative")
			}
		}
	}()

	return nil
}

// Resume scans every processing video at startup and marks it error,
// since without the original source file and in-flight scratch state the
// ingest cannot be safely continued across a process restart, spec §4.9
// "Resume on startup".
func (c *Coordinator) Resume(ctx context.Context) error {
	pending, err := c.store.ListProcessingVideos(ctx)
	if err != nil {
		return err
	}

	for _, v := range pending {
		workDir := filepath.Join(c.scratchRoot, v.VideoID)
		if info, statErr := os.Stat(workDir); statErr == nil && info.IsDir() {
			c.logger.Warn().Str("video_id", v.VideoID).Msg("scratch directory survives restart but resume is not supported; marking error")
		}
		if err := c.store.MarkError(ctx, v.VideoID, "interrupted by restart"); err != nil {
			c.logger.Error().Err(err).Str("video_id", v.VideoID).Msg("failed to mark interrupted video as error")
		}
		os.RemoveAll(workDir)
	}

	return nil
}

func sanitizeID(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			out = append(out, ch)
		case ch >= 'A' && ch <= 'Z':
			out = append(out, ch-'A'+'a')
		case ch == '-' || ch == '_':
			out = append(out, ch)
		default:
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return fmt.Sprintf("video-%d", time.Now().UnixNano())
	}
	return string(out)
}
