package blobclient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/config"
)

func testAccounts() []config.Account {
	return []config.Account{
		{ID: "acct-a", Endpoint: "127.0.0.1:9000", Destination: "bucket-a", AccessKey: "ak", SecretKey: "sk"},
		{ID: "acct-b", Endpoint: "127.0.0.1:9001", Destination: "bucket-b", AccessKey: "ak", SecretKey: "sk"},
	}
}

func TestNewBuildsOneClientPerAccount(t *testing.T) {
	c, err := New(testAccounts())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(c.clients) != 2 {
		t.Fatalf("expected 2 account clients, got %d", len(c.clients))
	}
}

func TestUnknownAccountIsRejectedBeforeAnyNetworkCall(t *testing.T) {
	c, err := New(testAccounts())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Info(context.Background(), "does-not-exist", "handle")
	if apperr.KindOf(err) != apperr.AccountUnavailable {
		t.Fatalf("expected AccountUnavailable, got %v", apperr.KindOf(err))
	}

	err = c.Ping(context.Background(), "does-not-exist")
	if apperr.KindOf(err) != apperr.AccountUnavailable {
		t.Fatalf("expected AccountUnavailable, got %v", apperr.KindOf(err))
	}

	_, _, err = c.Download(context.Background(), "does-not-exist", "handle")
	if apperr.KindOf(err) != apperr.AccountUnavailable {
		t.Fatalf("expected AccountUnavailable, got %v", apperr.KindOf(err))
	}
}

func TestIsRateLimitedDetectsSlowDownAndTooManyRequests(t *testing.T) {
	if !isRateLimited(minio.ErrorResponse{Code: "SlowDown"}) {
		t.Fatal("expected SlowDown error code to be treated as rate-limited")
	}
	if !isRateLimited(minio.ErrorResponse{StatusCode: 429}) {
		t.Fatal("expected HTTP 429 to be treated as rate-limited")
	}
	if isRateLimited(errors.New("boom")) {
		t.Fatal("expected a plain error not to be treated as rate-limited")
	}
}

func TestIsTransientDownloadError(t *testing.T) {
	if !isTransientDownloadError(minio.ErrorResponse{Code: "RequestTimeout"}) {
		t.Fatal("expected RequestTimeout to be transient")
	}
	if isTransientDownloadError(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatal("expected NoSuchKey not to be treated as transient")
	}
}

func TestClassifyFetchErrorDistinguishesUnreachableFromObjectError(t *testing.T) {
	if kind := apperr.KindOf(classifyFetchError("acct-a", errors.New("dial tcp: connection refused"))); kind != apperr.AccountUnavailable {
		t.Fatalf("expected AccountUnavailable for a transport-level error, got %v", kind)
	}
	if kind := apperr.KindOf(classifyFetchError("acct-a", minio.ErrorResponse{Code: "NoSuchKey"})); kind != apperr.FetchFailed {
		t.Fatalf("expected FetchFailed for a well-formed S3 error response, got %v", kind)
	}
	if kind := apperr.KindOf(classifyFetchError("acct-a", context.DeadlineExceeded)); kind != apperr.FetchTimeout {
		t.Fatalf("expected FetchTimeout when the request's own deadline elapses, got %v", kind)
	}
	wrapped := fmt.Errorf("get object: %w", context.DeadlineExceeded)
	if kind := apperr.KindOf(classifyFetchError("acct-a", wrapped)); kind != apperr.FetchTimeout {
		t.Fatalf("expected FetchTimeout for a wrapped deadline error, got %v", kind)
	}
}
