package ai

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

const maxRetryDelay = 8 * time.Second

// transientStatus finds an HTTP status quoted in an untyped provider error,
// e.g. "status code: 503" or "HTTP 429".
var transientStatus = regexp.MustCompile(`(?i)\b(?:status|code|http)\b\D{0,12}\b(429|5\d\d)\b`)

type retryGenerator struct {
	next       Generator
	maxRetries int
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// WithRetry retries transient failures of gen up to maxRetries times with
// jittered exponential backoff. Context errors are returned immediately.
func WithRetry(gen Generator, maxRetries int, baseDelay time.Duration) Generator {
	if maxRetries <= 0 {
		return gen
	}
	return &retryGenerator{
		next:       gen,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepContext,
	}
}

func (r *retryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, backoff(r.baseDelay, attempt)); err != nil {
				return "", err
			}
			log.Printf("[ai] retrying generation, attempt=%d err=%v", attempt, lastErr)
		}

		reply, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func backoff(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := base << uint(shift)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	// ±30% jitter
	jitter := time.Duration(float64(delay) * 0.3 * (rand.Float64()*2 - 1))
	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return retryableStatus(geminiErr.Code)
	}
	var geminiErrPtr *genai.APIError
	if errors.As(err, &geminiErrPtr) {
		return retryableStatus(geminiErrPtr.Code)
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "unavailable") ||
		transientStatus.MatchString(msg)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
