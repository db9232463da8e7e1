package resilient

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "net/http"
    "time"
)

// Logger is the logging surface the fetcher needs.
type Logger interface {
    Info(msg string, keysAndValues ...interface{})
    Error(msg string, keysAndValues ...interface{})
    Debug(msg string, keysAndValues ...interface{})
    Warn(msg string, keysAndValues ...interface{})
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RequestFunc builds a fresh request for one attempt. Request bodies cannot be
// replayed, so every attempt gets its own.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// retryableStatus lists the transient statuses worth another attempt.
var retryableStatus = map[int]bool{
    http.StatusRequestTimeout:      true,
    http.StatusTooManyRequests:     true,
    http.StatusInternalServerError: true,
    http.StatusBadGateway:          true,
    http.StatusServiceUnavailable:  true,
    http.StatusGatewayTimeout:      true,
}

// IsRetryableStatus reports whether status is one of 408, 429, 500, 502, 503, 504.
func IsRetryableStatus(status int) bool {
    return retryableStatus[status]
}

// Fetcher wraps an http.Client with per-attempt timeouts and exponential backoff.
type Fetcher struct {
    client *http.Client
    config RetryConfig
    logger Logger
    sleep  Sleeper
}

func NewFetcher(client *http.Client, config RetryConfig, logger Logger) *Fetcher {
    if client == nil {
        client = &http.Client{}
    }
    return &Fetcher{
        client: client,
        config: config,
        logger: logger,
        sleep:  sleepContext,
    }
}

// WithSleeper replaces the backoff sleeper.
func (f *Fetcher) WithSleeper(s Sleeper) *Fetcher {
    f.sleep = s
    return f
}

// Config returns the retry configuration in use.
func (f *Fetcher) Config() RetryConfig {
    return f.config
}

// Request is a convenience wrapper around Do for byte bodies.
func (f *Fetcher) Request(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
    return f.Do(ctx, func(ctx context.Context) (*http.Request, error) {
        var r io.Reader
        if body != nil {
            r = bytes.NewReader(body)
        }
        req, err := http.NewRequestWithContext(ctx, method, url, r)
        if err != nil {
            return nil, err
        }
        for k, vs := range header {
            for _, v := range vs {
                req.Header.Add(k, v)
            }
        }
        return req, nil
    })
}

// Do runs newRequest until it yields a non-retryable outcome or the retry
// budget is spent. A response with a non-retryable status is returned as-is;
// exhausting retries returns a *FetchError describing the last failure. The
// returned body stays bound to its attempt timeout until closed.
func (f *Fetcher) Do(ctx context.Context, newRequest RequestFunc) (*http.Response, error) {
    var lastErr error
    target := ""

    for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
        if attempt > 0 {
            delay := f.config.Delay(attempt - 1)
            f.logger.Warn("request failed, retrying",
                "attempt", attempt,
                "max_retries", f.config.MaxRetries,
                "url", target,
                "delay_ms", delay.Milliseconds(),
                "error", lastErr)
            if err := f.sleep(ctx, delay); err != nil {
                return nil, err
            }
        }

        attemptCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
        req, err := newRequest(attemptCtx)
        if err != nil {
            cancel()
            return nil, fmt.Errorf("build request: %w", err)
        }
        target = redactURL(req)

        resp, err := f.client.Do(req)
        if err != nil {
            cancel()
            // The caller gave up; no point in retrying.
            if ctx.Err() != nil {
                return nil, ctx.Err()
            }
            lastErr = &FetchError{URL: target, Attempts: attempt + 1, Cause: err}
            continue
        }

        if IsRetryableStatus(resp.StatusCode) {
            _, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
            resp.Body.Close()
            cancel()
            lastErr = &FetchError{
                URL:        target,
                Attempts:   attempt + 1,
                StatusCode: resp.StatusCode,
                Cause:      ErrRetryableStatus,
            }
            continue
        }

        if attempt > 0 {
            f.logger.Info("request succeeded after retry", "attempts", attempt+1, "url", target)
        }
        resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
        return resp, nil
    }

    f.logger.Error("request failed after all retries",
        "attempts", f.config.MaxRetries+1,
        "url", target,
        "error", lastErr)
    return nil, lastErr
}

type cancelOnClose struct {
    io.ReadCloser
    cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
    err := c.ReadCloser.Close()
    c.cancel()
    return err
}

// redactURL drops the query string, which may carry access tokens.
func redactURL(req *http.Request) string {
    if req == nil || req.URL == nil {
        return ""
    }
    u := *req.URL
    u.RawQuery = ""
    u.User = nil
    return u.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
    if d <= 0 {
        return nil
    }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
