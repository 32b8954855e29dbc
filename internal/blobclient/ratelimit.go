package blobclient

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
)

// withRateLimitRetry retries fn once per explicit rate-limit response,
// sleeping a capped default interval before retrying, spec §4.6
// "Rate-limit handling": never switch accounts, only wait and retry
// against the same one.
func (c *Client) withRateLimitRetry(ctx context.Context, fn func() (minio.UploadInfo, error)) (minio.UploadInfo, error) {
	const maxRateLimitRetries = 5

	for attempt := 0; ; attempt++ {
		info, err := fn()
		if err == nil {
			return info, nil
		}
		if !isRateLimited(err) || attempt >= maxRateLimitRetries {
			return info, err
		}

		c.logger.Warn().Int("attempt", attempt+1).Msg("remote account rate-limited upload, sleeping before retry")

		select {
		case <-time.After(rateLimitCap):
		case <-ctx.Done():
			return info, ctx.Err()
		}
	}
}

func isRateLimited(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "SlowDown" || resp.StatusCode == 429
}
