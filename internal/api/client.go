package api

import (
	"context"
	stderrors "errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/dl-alexandre/drivesync/internal/errors"
	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client is a Drive service plus the retry policy every call goes through
type Client struct {
	service    *drive.Service
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
	clock      clockwork.Clock
}

// NewClient wraps service. maxRetries of 0 sends each request once, which is
// what a sync run uses unless the config opts in to retries.
func NewClient(service *drive.Service, maxRetries int, retryDelayMs int, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Client{
		service:    service,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
	}
}

// WithClock replaces the clock used for backoff waits
func (c *Client) WithClock(clock clockwork.Clock) *Client {
	c.clock = clock
	return c
}

func (c *Client) Service() *drive.Service {
	return c.service
}

// NewRequestContext starts a request trace with a fresh uuid
func NewRequestContext(profile string, driveID string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Profile:           profile,
		DriveID:           driveID,
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       requestType,
		TraceID:           uuid.New().String(),
	}
}

// ExecuteWithRetry runs fn, retrying transient Drive failures up to the
// client's maxRetries. Any returned error is classified into a tool error.
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var zero T
	log := client.logger.WithTraceID(reqCtx.TraceID)
	start := client.clock.Now()
	elapsed := func() logging.Field {
		return logging.F("duration_ms", client.clock.Since(start).Milliseconds())
	}
	fail := func(err error) (T, error) {
		return zero, errors.ClassifyGoogleAPIError("drive", err, reqCtx, client.logger)
	}

	log.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("profile", reqCtx.Profile),
	)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		result, err := fn()
		if err == nil {
			log.Debug("API operation completed", elapsed(), logging.F("attempts", attempt+1))
			return result, nil
		}

		if !isRetryable(err) || attempt >= client.maxRetries {
			log.Error("API operation failed",
				elapsed(),
				logging.F("attempts", attempt+1),
				logging.F("retryable", isRetryable(err)),
				logging.F("error", err.Error()),
			)
			return fail(err)
		}

		delay := calculateBackoff(client.retryDelay, attempt, err)
		log.Warn("Retrying API operation",
			logging.F("attempt", attempt+1),
			logging.F("maxRetries", client.maxRetries),
			logging.F("delay_ms", delay.Milliseconds()),
			logging.F("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-client.clock.After(delay):
		}
	}
}

// isRetryable is true for throttling and server-side failures
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		// Drive reports per-user throttling as 403
		for _, item := range apiErr.Errors {
			if item.Reason == "userRateLimitExceeded" || item.Reason == "rateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// calculateBackoff honours Retry-After, otherwise doubles baseDelay per
// attempt with +/-25% jitter. Both are capped at MaxRetryDelayMs.
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Header != nil {
		if seconds, convErr := strconv.Atoi(apiErr.Header.Get("Retry-After")); convErr == nil {
			return min(time.Duration(seconds)*time.Second, maxDelay)
		}
	}

	delay := maxDelay
	if attempt < 30 {
		delay = min(baseDelay<<attempt, maxDelay)
	}
	if spread := delay / 4; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread*2))) - spread
	}
	if delay <= 0 {
		delay = baseDelay
	}
	return delay
}
