// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
    "net"
    "net/http"
    "strings"
    "sync"
    "time"

    "golang.org/x/time/rate"
)

// Config holds rate limiting configuration
type Config struct {
    RequestsPerMinute int           // sustained rate per client
    Burst             int           // requests allowed at once
    IdleTTL           time.Duration // forget clients idle this long
    CleanupPeriod     time.Duration // how often idle clients are swept
}

// DefaultStreamConfig returns defaults for the chat stream routes.
func DefaultStreamConfig() *Config {
    return &Config{
        RequestsPerMinute: 30,
        Burst:             10,
        IdleTTL:           10 * time.Minute,
        CleanupPeriod:     5 * time.Minute,
    }
}

// client tracks the bucket for an IP/identifier
type client struct {
    limiter  *rate.Limiter
    lastSeen time.Time
}

// Limiter is an in-memory token bucket per identifier.
type Limiter struct {
    config  *Config
    clients map[string]*client
    mu      sync.Mutex
    now     func() time.Time
    stopCh  chan struct{}
    once    sync.Once
}

// NewLimiter creates a limiter and starts its cleanup goroutine.
func NewLimiter(config *Config) *Limiter {
    if config == nil {
        config = DefaultStreamConfig()
    }
    l := &Limiter{
        config:  config,
        clients: make(map[string]*client),
        now:     time.Now,
        stopCh:  make(chan struct{}),
    }

    go l.cleanupLoop()

    return l
}

// Info describes the outcome of Allow.
type Info struct {
    Allowed    bool
    Limit      int
    Remaining  int
    RetryAfter time.Duration
}

// Allow takes one token for identifier.
func (l *Limiter) Allow(identifier string) Info {
    l.mu.Lock()
    defer l.mu.Unlock()

    now := l.now()
    c, ok := l.clients[identifier]
    if !ok {
        perSecond := rate.Limit(float64(l.config.RequestsPerMinute) / 60)
        c = &client{limiter: rate.NewLimiter(perSecond, l.config.Burst)}
        l.clients[identifier] = c
    }
    c.lastSeen = now

    info := Info{Limit: l.config.Burst}
    res := c.limiter.ReserveN(now, 1)
    if !res.OK() {
        return info
    }
    if delay := res.DelayFrom(now); delay > 0 {
        res.CancelAt(now)
        info.RetryAfter = delay
        return info
    }

    info.Allowed = true
    if remaining := int(c.limiter.TokensAt(now)); remaining > 0 {
        info.Remaining = remaining
    }
    return info
}

func (l *Limiter) cleanupLoop() {
    ticker := time.NewTicker(l.config.CleanupPeriod)
    defer ticker.Stop()

    for {
        select {
        case <-ticker.C:
            l.cleanup()
        case <-l.stopCh:
            return
        }
    }
}

func (l *Limiter) cleanup() {
    l.mu.Lock()
    defer l.mu.Unlock()

    now := l.now()
    for id, c := range l.clients {
        if now.Sub(c.lastSeen) > l.config.IdleTTL {
            delete(l.clients, id)
        }
    }
}

// Close stops the cleanup goroutine
func (l *Limiter) Close() {
    l.once.Do(func() { close(l.stopCh) })
}

// GetClientIP extracts the real client IP from request
func GetClientIP(r *http.Request) string {
    // Check for forwarded IP (behind proxy/load balancer)
    if ip := parseFirstIP(r.Header.Get("X-Forwarded-For")); ip != "" {
        return ip
    }

    if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
        return realIP
    }

    ip, _, err := net.SplitHostPort(r.RemoteAddr)
    if err != nil {
        return r.RemoteAddr
    }
    return ip
}

// parseFirstIP extracts the first valid IP from a comma-separated list
func parseFirstIP(forwarded string) string {
    for _, part := range strings.Split(forwarded, ",") {
        if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
            return ip.String()
        }
    }
    return ""
}
