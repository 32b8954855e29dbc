// Package blobclient is the Remote Blob Client, spec §4.6: it models
// each configured account as an S3-compatible client and never lets a
// caller fall back to a different account than the one it asked for
// (isolation on retrieval, spec §4.2).
package blobclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/config"
)

const (
	uploadTimeout   = 10 * time.Minute
	infoTimeout     = 30 * time.Second
	downloadTimeout = 5 * time.Minute

	rateLimitCap = 30 * time.Second
)

// Info describes one stored object's basic attributes, spec §4.6 "info".
type Info struct {
	RemotePath string
	Size       int64
}

// Client is the Remote Blob Client. It owns one minio.Client per account
// and dispatches every operation strictly against the account the caller
// names.
type Client struct {
	clients map[string]*accountClient
	logger  zerolog.Logger
}

type accountClient struct {
	minio       *minio.Client
	destination string
}

// New builds one minio.Client per configured account.
func New(accounts []config.Account) (*Client, error) {
	clients := make(map[string]*accountClient, len(accounts))
	for _, a := range accounts {
		mc, err := minio.New(a.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(a.AccessKey, a.SecretKey, ""),
			Secure: a.UseTLS,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.ConfigInvalid, err, fmt.Sprintf("unable to construct client for account %q", a.ID))
		}
		clients[a.ID] = &accountClient{minio: mc, destination: a.Destination}
	}
	return &Client{clients: clients, logger: log.With().Str("module", "blobclient").Logger()}, nil
}

func (c *Client) account(accountID string) (*accountClient, error) {
	ac, ok := c.clients[accountID]
	if !ok {
		return nil, apperr.New(apperr.AccountUnavailable, fmt.Sprintf("account %q is not configured", accountID))
	}
	return ac, nil
}

// Upload streams r to the named account's destination bucket, returning
// an opaque handle (the object key), spec §4.6 "upload(account, io,
// filename) -> handle". The distributor.Uploader interface is satisfied
// structurally by this method.
func (c *Client) Upload(ctx context.Context, account config.Account, r io.Reader, filename string) (string, error) {
	ac, err := c.account(account.ID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	handle := objectKey(filename)

	_, err = c.withRateLimitRetry(ctx, func() (minio.UploadInfo, error) {
		return ac.minio.PutObject(ctx, ac.destination, handle, r, -1, minio.PutObjectOptions{ContentType: contentType})
	})
	if err != nil {
		return "", apperr.Wrap(apperr.UploadFailed, err, fmt.Sprintf("upload to account %q failed", account.ID))
	}

	return handle, nil
}

// Info returns the size and remote path of an already-uploaded object,
// spec §4.6 "info(account, handle) -> {remote_path, size}".
func (c *Client) Info(ctx context.Context, accountID, handle string) (Info, error) {
	ac, err := c.account(accountID)
	if err != nil {
		return Info{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	stat, err := ac.minio.StatObject(ctx, ac.destination, handle, minio.StatObjectOptions{})
	if err != nil {
		return Info{}, classifyFetchError(accountID, err)
	}

	return Info{RemotePath: fmt.Sprintf("%s/%s", ac.destination, handle), Size: stat.Size}, nil
}

// Download opens a lazy stream to the object identified by (accountID,
// handle). The retrieval path MUST NOT try any other account on failure,
// spec §4.2 "Isolation on retrieval".
func (c *Client) Download(ctx context.Context, accountID, handle string) (io.ReadCloser, int64, error) {
	ac, err := c.account(accountID)
	if err != nil {
		return nil, 0, err
	}

	dctx, cancel := context.WithTimeout(ctx, downloadTimeout)

	obj, err := ac.minio.GetObject(dctx, ac.destination, handle, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, 0, classifyFetchError(accountID, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isTransientDownloadError(err) {
			obj2, retryErr := ac.minio.GetObject(dctx, ac.destination, handle, minio.GetObjectOptions{})
			if retryErr == nil {
				if stat2, statErr := obj2.Stat(); statErr == nil {
					return &closerWithCancel{ReadCloser: obj2, cancel: cancel}, stat2.Size, nil
				}
				obj2.Close()
			}
		}
		cancel()
		return nil, 0, classifyFetchError(accountID, err)
	}

	return &closerWithCancel{ReadCloser: obj, cancel: cancel}, stat.Size, nil
}

// closerWithCancel ties a stream's lifetime to its request-scoped
// deadline: once the caller closes the stream, the timeout is released.
type closerWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *closerWithCancel) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Ping checks that an account's destination bucket is reachable, spec
// §4.6 "ping(account) -> ok|err".
func (c *Client) Ping(ctx context.Context, accountID string) error {
	ac, err := c.account(accountID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	exists, err := ac.minio.BucketExists(ctx, ac.destination)
	if err != nil {
		return apperr.Wrap(apperr.AccountUnavailable, err, fmt.Sprintf("ping failed for account %q", accountID))
	}
	if !exists {
		return apperr.New(apperr.AccountUnavailable, fmt.Sprintf("destination bucket for account %q does not exist", accountID))
	}
	return nil
}

// Delete removes an object from the named account's destination bucket.
// It is used for best-effort cleanup of partial uploads and video
// deletion, spec §4.9; a missing object is not an error.
func (c *Client) Delete(ctx context.Context, accountID, handle string) error {
	ac, err := c.account(accountID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	if err := ac.minio.RemoveObject(ctx, ac.destination, handle, minio.RemoveObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return apperr.Wrap(apperr.FetchFailed, err, fmt.Sprintf("delete failed for account %q", accountID))
	}
	return nil
}

func objectKey(filename string) string {
	return filename
}

// classifyFetchError distinguishes three failure classes on a download or
// stat: the request's own deadline elapsing (FETCH_TIMEOUT), a
// connection-level failure to reach the account's endpoint at all -- the
// same class of failure Ping surfaces as ACCOUNT_UNAVAILABLE -- and a
// well-formed S3 error response for an object that was actually reached
// (missing key, access denied, etc.), which is a genuine FETCH_FAILED,
// spec §5 / §7 / §8 scenario 5. minio-go's ToErrorResponse only populates
// Code when the server returned a parseable S3 XML error body; a
// transport-level failure (DNS, connection refused, TLS handshake, timeout
// before any response) leaves it empty.
func classifyFetchError(accountID string, err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.FetchTimeout, err, fmt.Sprintf("download timed out for account %q", accountID))
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "" {
		return apperr.Wrap(apperr.AccountUnavailable, err, fmt.Sprintf("account %q is unreachable", accountID))
	}
	return apperr.Wrap(apperr.FetchFailed, err, fmt.Sprintf("download failed for account %q", accountID))
}

func isTransientDownloadError(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "RequestTimeout", "InternalError", "SlowDown":
		return true
	}
	return false
}
