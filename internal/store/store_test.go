package store

import (
	"context"
	"testing"

	"github.com/stashcast/stashcast/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared&_fk=1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndActivateVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := &Video{VideoID: "video-1", Filename: "movie.mp4"}
	if err := s.CreateProcessingVideo(ctx, v); err != nil {
		t.Fatalf("CreateProcessingVideo: %v", err)
	}

	loaded, err := s.GetVideo(ctx, "video-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if loaded.Status != StatusProcessing {
		t.Fatalf("expected processing status, got %v", loaded.Status)
	}

	if err := s.InsertSegment(ctx, &Segment{VideoID: "video-1", Ordinal: 0, Filename: "seg-0.ts", Bytes: 100}); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}
	if err := s.InsertSegment(ctx, &Segment{VideoID: "video-1", Ordinal: 1, Filename: "seg-1.ts", Bytes: 200}); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}

	if err := s.Activate(ctx, "video-1", 2, 300, 4.5, "mpegts", "h264", "aac"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	loaded, err = s.GetVideo(ctx, "video-1")
	if err != nil {
		t.Fatalf("GetVideo after activate: %v", err)
	}
	if loaded.Status != StatusActive {
		t.Fatalf("expected active status, got %v", loaded.Status)
	}
	if loaded.TotalSegments != 2 {
		t.Fatalf("expected 2 total segments, got %d", loaded.TotalSegments)
	}
	if len(loaded.Segments) != 2 {
		t.Fatalf("expected 2 preloaded segments, got %d", len(loaded.Segments))
	}
	if loaded.DurationSecs != 4.5 {
		t.Fatalf("expected duration_secs to be persisted, got %v", loaded.DurationSecs)
	}
	if loaded.Container != "mpegts" || loaded.VideoCodec != "h264" || loaded.AudioCodec != "aac" {
		t.Fatalf("expected probed container/codec metadata to be persisted, got %+v", loaded)
	}
}

func TestGetVideoNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetVideo(context.Background(), "missing")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", apperr.KindOf(err))
	}
}

func TestDeleteVideoCascadesSegments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := &Video{VideoID: "video-2", Filename: "clip.mp4"}
	if err := s.CreateProcessingVideo(ctx, v); err != nil {
		t.Fatalf("CreateProcessingVideo: %v", err)
	}
	if err := s.InsertSegment(ctx, &Segment{VideoID: "video-2", Ordinal: 0, Filename: "seg-0.ts"}); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}

	if err := s.DeleteVideo(ctx, "video-2"); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}

	if _, err := s.GetVideo(ctx, "video-2"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected video to be gone, got err=%v", err)
	}
	if _, err := s.GetSegment(ctx, "video-2", 0); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected segment to cascade-delete, got err=%v", err)
	}
}

func TestListProcessingVideosOnlyReturnsProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateProcessingVideo(ctx, &Video{VideoID: "video-a"}); err != nil {
		t.Fatalf("CreateProcessingVideo: %v", err)
	}
	if err := s.CreateProcessingVideo(ctx, &Video{VideoID: "video-b"}); err != nil {
		t.Fatalf("CreateProcessingVideo: %v", err)
	}
	if err := s.Activate(ctx, "video-b", 0, 0, 0, "", "", ""); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	pending, err := s.ListProcessingVideos(ctx)
	if err != nil {
		t.Fatalf("ListProcessingVideos: %v", err)
	}
	if len(pending) != 1 || pending[0].VideoID != "video-a" {
		t.Fatalf("expected only video-a pending, got %+v", pending)
	}
}

func TestListVideosPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"video-1", "video-2", "video-3"} {
		if err := s.CreateProcessingVideo(ctx, &Video{VideoID: id}); err != nil {
			t.Fatalf("CreateProcessingVideo: %v", err)
		}
	}

	page, total, err := s.ListVideos(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total=3, got %d", total)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}
