package httpapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/catalog"
)

const uploadChunkBytes = 64 * 1024

// job tracks one in-flight ingest for the /api/upload/{job}/progress
// endpoint, spec §4.5 "Upload handling".
type job struct {
	mu sync.Mutex

	phase        string
	currentBytes int64
	totalBytes   int64
	startedAt    time.Time
	videoID      string
	err          error
}

func (j *job) setPhase(p string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phase = p
}

func (j *job) addBytes(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.currentBytes += n
}

func (j *job) finish(videoID string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.videoID = videoID
	j.err = err
	if err != nil {
		j.phase = string(catalog.PhaseError)
	} else {
		j.phase = string(catalog.PhaseDone)
	}
}

type jobProgress struct {
	Phase   string  `json:"phase"`
	Current int64   `json:"current_bytes"`
	Total   int64   `json:"total_bytes"`
	RateBps float64 `json:"rate_bps"`
	ETASecs float64 `json:"eta_s"`
	VideoID string  `json:"video_id,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func (j *job) snapshot() jobProgress {
	j.mu.Lock()
	defer j.mu.Unlock()

	elapsed := time.Since(j.startedAt).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(j.currentBytes) / elapsed
	}
	eta := 0.0
	if rate > 0 && j.totalBytes > j.currentBytes {
		eta = float64(j.totalBytes-j.currentBytes) / rate
	}

	p := jobProgress{
		Phase:   j.phase,
		Current: j.currentBytes,
		Total:   j.totalBytes,
		RateBps: rate,
		ETASecs: eta,
		VideoID: j.videoID,
	}
	if j.err != nil {
		p.Error = string(apperr.KindOf(j.err))
	}
	return p
}

type jobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: map[string]*job{}}
}

func (r *jobRegistry) create(totalBytes int64) (string, *job) {
	id := uuid.NewString()
	j := &job{phase: "receiving", totalBytes: totalBytes, startedAt: time.Now()}
	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()
	return id, j
}

func (r *jobRegistry) get(id string) (*job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// upload serves POST /api/upload, spec §4.5. The body is copied to a
// scratch file in bounded chunks -- never buffered fully in memory or
// via multipart.ParseMultipartForm -- then handed to the Catalog
// Coordinator for probe/plan/upload/commit.
func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.bin"
	}

	jobID, j := a.jobs.create(r.ContentLength)

	tmp, err := os.CreateTemp(a.plannerCfg.ScratchDir, "upload-*")
	if err != nil {
		writeError(w, apperr.Wrap(apperr.TranscodeFailed, err, "unable to create upload scratch file"))
		return
	}
	tmpPath := tmp.Name()

	buf := make([]byte, uploadChunkBytes)
	_, copyErr := io.CopyBuffer(countingWriter{w: tmp, job: j}, r.Body, buf)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		writeError(w, apperr.Wrap(apperr.TranscodeFailed, copyErr, "upload body read failed"))
		return
	}

	// Ingest keeps running after this handler returns, so it must not
	// inherit r.Context()'s cancellation, which fires as soon as
	// ServeHTTP returns.
	ingestCtx := context.WithoutCancel(r.Context())
	go func() {
		defer os.Remove(tmpPath)

		videoID, err := a.catalog.Ingest(ingestCtx, tmpPath, filename, a.plannerOptions(), func(p catalog.Phase) {
			j.setPhase(string(p))
		})
		j.finish(videoID, err)
	}()

	writeJSON(w, http.StatusAccepted, struct {
		Job string `json:"job"`
	}{jobID})
}

// countingWriter records bytes written to the scratch file on the job so
// the progress endpoint can report current_bytes during "receiving".
type countingWriter struct {
	w   io.Writer
	job *job
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.job.addBytes(int64(n))
	return n, err
}

// uploadProgress serves GET /api/upload/{job}/progress, spec §4.5.
func (a *API) uploadProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job")
	j, ok := a.jobs.get(id)
	if !ok {
		writeError(w, apperr.New(apperr.NotFound, "unknown upload job"))
		return
	}
	writeJSON(w, http.StatusOK, j.snapshot())
}
