// Package distributor spreads a video's segments across the configured
// remote accounts and records the resulting (handle, account_id) pairs,
// spec §4.2.
package distributor

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/backoff"
	"github.com/stashcast/stashcast/internal/config"
)

// Uploader is the subset of the Remote Blob Client the distributor needs.
// internal/blobclient.Client satisfies this structurally; the distributor
// never imports blobclient directly so the dependency runs one way.
type Uploader interface {
	Upload(ctx context.Context, account config.Account, r io.Reader, filename string) (handle string, err error)
}

// Assignment is the recorded (handle, account_id) target for one segment.
type Assignment struct {
	Ordinal   int
	AccountID string
	Handle    string
	Bytes     int64
}

// Distributor assigns segments to accounts and drives their uploads with
// bounded per-account concurrency and retry.
type Distributor struct {
	uploader Uploader
	accounts []config.Account
	sems     map[string]chan struct{}
	retries  int
	logger   zerolog.Logger
}

// New builds a Distributor. concurrency is the total upload concurrency P
// across all accounts; each account gets a semaphore sized max(1, P/K),
// spec §4.2 "Parallelism".
func New(uploader Uploader, accounts []config.Account, concurrency, retries int) *Distributor {
	k := len(accounts)
	perAccount := 1
	if k > 0 {
		perAccount = concurrency / k
		if perAccount < 1 {
			perAccount = 1
		}
	}

	sems := make(map[string]chan struct{}, k)
	for _, a := range accounts {
		sems[a.ID] = make(chan struct{}, perAccount)
	}

	return &Distributor{
		uploader: uploader,
		accounts: accounts,
		sems:     sems,
		retries:  retries,
		logger:   log.With().Str("module", "distributor").Logger(),
	}
}

// AssignAccount implements the assignment rule of spec §4.2:
// accounts[(H(video_id) + i) mod K].
func (d *Distributor) AssignAccount(videoID string, ordinal int) config.Account {
	k := len(d.accounts)
	h := xxhash.Sum64String(videoID)
	idx := (int(h%uint64(k)) + ordinal%k + k) % k
	return d.accounts[idx]
}

// AssignmentSource describes one on-disk segment ready for upload.
type AssignmentSource struct {
	Ordinal  int
	Path     string
	Filename string
	Duration float64
}

// DistributeSegments uploads every segment in segs, assigning each to an
// account per the stable-hash rule, honoring per-account concurrency and
// retrying transient failures. It returns one Assignment per segment on
// full success. On the first failed upload it aborts the remaining uploads
// via ctx cancellation and returns the assignments that did complete
// together with an UploadFailed error wrapping that first failure. With no
// accounts configured it returns AccountUnavailable.
func (d *Distributor) DistributeSegments(ctx context.Context, videoID string, segs []AssignmentSource) ([]Assignment, error) {
	if len(d.accounts) == 0 {
		return nil, apperr.New(apperr.AccountUnavailable, "no accounts configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Assignment, len(segs))
	errs := make(chan error, len(segs))
	var wg sync.WaitGroup

	for i, seg := range segs {
		account := d.AssignAccount(videoID, seg.Ordinal)
		sem := d.sems[account.ID]

		wg.Add(1)
		go func(i int, seg AssignmentSource, account config.Account, sem chan struct{}) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			defer func() { <-sem }()

			handle, size, err := d.uploadWithRetry(ctx, account, seg)
			if err != nil {
				errs <- err
				cancel()
				return
			}

			results[i] = Assignment{
				Ordinal:   seg.Ordinal,
				AccountID: account.ID,
				Handle:    handle,
				Bytes:     size,
			}
			errs <- nil
		}(i, seg, account, sem)
	}

	wg.Wait()
	close(errs)

	var firstErr error
	for err := range errs {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		// Return whatever segments did complete before the failure so the
		// caller's best-effort rollback can still delete their remote
		// handles, spec §4.9. Uploads that never started or were aborted
		// via ctx cancellation leave their slot as a zero Assignment.
		completed := make([]Assignment, 0, len(results))
		for _, r := range results {
			if r.Handle != "" {
				completed = append(completed, r)
			}
		}
		return completed, apperr.Wrap(apperr.UploadFailed, firstErr, "segment upload failed")
	}

	return results, nil
}

// DistributeOne uploads a single file (used for subtitle tracks, which
// upload independently of the segment batch and must not abort it on
// failure) assigned to an account by the same stable-hash rule as
// DistributeSegments.
func (d *Distributor) DistributeOne(ctx context.Context, videoID string, ordinal int, src AssignmentSource) (Assignment, error) {
	if len(d.accounts) == 0 {
		return Assignment{}, apperr.New(apperr.AccountUnavailable, "no accounts configured")
	}

	account := d.AssignAccount(videoID, ordinal)
	handle, size, err := d.uploadWithRetry(ctx, account, src)
	if err != nil {
		return Assignment{}, apperr.Wrap(apperr.UploadFailed, err, "subtitle upload failed")
	}

	return Assignment{Ordinal: ordinal, AccountID: account.ID, Handle: handle, Bytes: size}, nil
}

func (d *Distributor) uploadWithRetry(ctx context.Context, account config.Account, seg AssignmentSource) (string, int64, error) {
	policy := backoff.Default()
	policy.Attempts = d.retries

	var handle string
	var size int64

	err := backoff.Retry(ctx, policy, isTransient, func(attempt int) error {
		f, err := os.Open(seg.Path)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}

		h, err := d.uploader.Upload(ctx, account, f, seg.Filename)
		if err != nil {
			d.logger.Warn().Err(err).Str("account", account.ID).Int("attempt", attempt).Msg("segment upload attempt failed")
			return err
		}
		handle = h
		size = info.Size()
		return nil
	})

	return handle, size, err
}

// isTransient is deliberately permissive: the backoff package itself
// caps attempts, and the Remote Blob Client is expected to only return
// errors worth retrying from Upload (network, 5xx, 429).
func isTransient(err error) bool {
	return err != nil
}
