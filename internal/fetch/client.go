package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultAttempts     = 3
	DefaultMaxBodyBytes = 512 << 20
	DefaultUserAgent    = "mediaq/1.0"
)

// FetchError is returned when every attempt at a URL has failed.
// StatusCode is 0 when the last attempt never got a response.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

var errBodyTooLarge = errors.New("response body exceeds size limit")

type Options struct {
	Timeout           time.Duration
	Attempts          int
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
}

// Client performs GETs against remote origins with retry, a per-request
// timeout and an optional shared rate limit.
type Client struct {
	http      *http.Client
	attempts  int
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	log       *logger.Logger
}

func New(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	c := &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		attempts:  opts.Attempts,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		log:       log,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Text fetches url and returns the body as a string.
func (c *Client) Text(ctx context.Context, url string) (string, error) {
	body, err := c.Bytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Bytes fetches url, retrying immediately up to the configured attempt count.
func (c *Client) Bytes(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &FetchError{URL: url, Attempts: attempt - 1, Err: err}
			}
		}

		body, status, err := c.once(ctx, url)
		if err == nil {
			c.log.Debug("[Fetch] %s (%s)", url, humanize.Bytes(uint64(len(body))))
			return body, nil
		}
		lastErr, lastStatus = err, status

		if ctx.Err() != nil {
			return nil, &FetchError{URL: url, StatusCode: lastStatus, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt < c.attempts {
			c.log.Warn("[Retry] %s: %v (attempt %d/%d)", url, err, attempt, c.attempts)
		}
	}

	return nil, &FetchError{URL: url, StatusCode: lastStatus, Attempts: c.attempts, Err: lastErr}
}

func (c *Client) once(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, resp.StatusCode, errBodyTooLarge
	}
	return body, resp.StatusCode, nil
}
