package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subfeed/internal/shared"
	"golang.org/x/time/rate"
)

// DefaultBackoff is the sleep before retrying a rate-limited call.
const DefaultBackoff = 60 * time.Second

// Outcome classifies the result of one HTTP attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeHTTPError
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return ""
	}
}

// APIError describes a failed YouTube API call.
//
// It unwraps to one of [shared.ErrUnauthorized], [shared.ErrRateLimited], [shared.ErrUpstream]
// or [shared.ErrTransport], and to the underlying transport error when there is one.
type APIError struct {
	Kind       error
	Outcome    Outcome
	Endpoint   string
	StatusCode int
	Reason     string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Endpoint, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%v: %s: status %d (%s): %s", e.Kind, e.Endpoint, e.StatusCode, e.Reason, e.Message)
	default:
		return fmt.Sprintf("%v: %s: status %d", e.Kind, e.Endpoint, e.StatusCode)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// ExecutorOpts configures an [Executor]. Zero values select defaults.
type ExecutorOpts struct {
	HTTPClient        *http.Client
	Backoff           time.Duration // default: [DefaultBackoff]
	RequestsPerSecond float64       // 0 disables the limiter
	Sleep             SleepFunc
	Logger            *log.Logger
}

// Executor performs YouTube API calls, retrying exactly once after a backoff when rate limited.
//
// One Executor is shared by all goroutines of an aggregation, along with its HTTP client and optional limiter.
type Executor struct {
	client  *http.Client
	backoff time.Duration
	limiter *rate.Limiter
	sleep   SleepFunc
	logger  *log.Logger
}

// NewExecutor creates an [Executor] from opts.
func NewExecutor(opts ExecutorOpts) *Executor {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}

	e := &Executor{
		client:  opts.HTTPClient,
		backoff: opts.Backoff,
		sleep:   opts.Sleep,
		logger:  opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return e
}

// Backoff returns the configured retry delay.
func (e *Executor) Backoff() time.Duration { return e.backoff }

// Do executes one call and returns the response body of a 2xx response.
//
// A rate-limited attempt is retried once after the backoff; a second rate limit is reported as
// [shared.ErrRateLimited]. HTTP and transport failures are returned immediately.
func (e *Executor) Do(ctx context.Context, endpoint string, build RequestFunc) ([]byte, error) {
	body, err := e.attempt(ctx, endpoint, build)
	if !isRateLimited(err) {
		return body, err
	}

	e.logger.Warn("rate limited, backing off before retry", "endpoint", endpoint, "backoff", e.backoff)
	if err := e.sleep(ctx, e.backoff); err != nil {
		return nil, err
	}

	body, err = e.attempt(ctx, endpoint, build)
	if isRateLimited(err) {
		e.logger.Error("rate limit persisted after retry", "endpoint", endpoint)
	}
	return body, err
}

func (e *Executor) attempt(ctx context.Context, endpoint string, build RequestFunc) ([]byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &APIError{Kind: shared.ErrTransport, Outcome: OutcomeTransportError, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: shared.ErrTransport, Outcome: OutcomeTransportError, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	outcome, reason, message := classify(resp.StatusCode, body)
	switch outcome {
	case OutcomeSuccess:
		return body, nil
	case OutcomeRateLimited:
		return nil, &APIError{Kind: shared.ErrRateLimited, Outcome: outcome, Endpoint: endpoint, StatusCode: resp.StatusCode, Reason: reason, Message: message}
	default:
		kind := shared.ErrUpstream
		if resp.StatusCode == http.StatusUnauthorized {
			kind = shared.ErrUnauthorized
		}
		return nil, &APIError{Kind: kind, Outcome: outcome, Endpoint: endpoint, StatusCode: resp.StatusCode, Reason: reason, Message: message}
	}
}

// googleErrorBody is the error envelope returned by Google APIs.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// classify maps a status code and body to an [Outcome].
//
// 429 is always rate limiting. Google also reports short-term throttling as 403 with a
// rateLimitExceeded reason; the daily quotaExceeded is not retryable and stays an HTTP error.
func classify(status int, body []byte) (Outcome, string, string) {
	if status >= 200 && status < 300 {
		return OutcomeSuccess, "", ""
	}

	var ge googleErrorBody
	var reason string
	if err := json.Unmarshal(body, &ge); err == nil && len(ge.Error.Errors) > 0 {
		reason = ge.Error.Errors[0].Reason
	}

	switch {
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited, reason, ge.Error.Message
	case status == http.StatusForbidden && (reason == "rateLimitExceeded" || reason == "userRateLimitExceeded"):
		return OutcomeRateLimited, reason, ge.Error.Message
	default:
		return OutcomeHTTPError, reason, ge.Error.Message
	}
}

func isRateLimited(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Outcome == OutcomeRateLimited
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
