// Package client is the Go counterpart of the embeddable widget: it sends a
// visitor message and consumes the streamed reply, recovering from expired
// sessions by opening a new chat.
package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iyunix/go-chatwidget/internal/dtos"
	"github.com/iyunix/go-chatwidget/internal/protocol"
	"github.com/iyunix/go-chatwidget/internal/services/resilient"
)

// ErrReconnectLimit is returned once the reconnect budget is spent.
var ErrReconnectLimit = errors.New("client: reconnect limit reached")

// Handlers receive the outcome of a send. All are optional.
type Handlers struct {
	OnChunk        func(text string)
	OnSpecialEvent func(ev protocol.Event)
	OnDone         func(fullText string)
	OnError        func(code, message string)
	OnStateChange  func(from, to State)
}

// Client sends one message at a time; callers serialize Send.
type Client struct {
	opts     Options
	creds    CredentialStore
	fetcher  *resilient.Fetcher
	primary  Transport
	fallback Transport
	policy   *reconnectPolicy
	logger   Logger

	machine  *machine
	observer func(from, to State)

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a client. A nil store keeps credentials in memory.
func New(opts Options, creds CredentialStore) (*Client, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if creds == nil {
		creds = &MemoryCredentialStore{}
	}

	c := &Client{
		opts:     opts,
		creds:    creds,
		fetcher:  resilient.NewFetcher(opts.HTTPClient, opts.Retry, opts.Logger),
		primary:  NewNDJSONTransport(opts.HTTPClient, opts.BaseURL),
		fallback: NewSSETransport(opts.HTTPClient, opts.BaseURL),
		policy:   newReconnectPolicy(opts.MaxReconnectAttempts, opts.ReconnectBaseDelay, opts.ReconnectResetTime),
		logger:   opts.Logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
	c.machine = newMachine(func(from, to State) {
		c.logger.Debug("client state", "from", string(from), "to", string(to))
		if c.observer != nil {
			c.observer(from, to)
		}
	})
	return c, nil
}

func (c *Client) State() State { return c.machine.current() }

// Credentials returns the stored session, if any.
func (c *Client) Credentials() (Credentials, bool) { return c.creds.Load() }

// Cancel aborts the send in flight. The aborted send returns without
// invoking any handler.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	if c.cancel != nil {
		c.cancel()
	}
}

// Send delivers content and blocks until the reply is complete, fails, or
// the send is cancelled. The returned error mirrors what OnError received;
// cancellation returns nil.
func (c *Client) Send(ctx context.Context, content string, h Handlers) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.cancelled = false
	c.mu.Unlock()
	c.observer = h.OnStateChange

	req := dtos.StreamRequest{Content: content, Timezone: c.opts.Timezone, EmailCapture: c.opts.EmailCapture}

	for {
		c.to(StateResolvingSession)
		creds, err := c.resolveSession(ctx)
		if err != nil {
			if c.aborted(ctx) {
				c.to(StateCancelled)
				return nil
			}
			c.to(StateError)
			code, msg := errorCode(err)
			h.onError(code, msg)
			return err
		}

		c.to(StateSending)
		res := c.exchange(ctx, creds, req, h)

		if c.aborted(ctx) {
			c.to(StateCancelled)
			return nil
		}

		switch {
		case res.done != nil:
			c.to(StateComplete)
			h.onDone(*res.done)
			return nil

		case res.event != nil:
			code := res.event.Code
			switch {
			case isTokenCode(code):
				c.logger.Info("session rejected, opening a new chat", "code", code)
			case isNotFoundCode(code):
				h.onError(code, res.event.Error)
				c.logger.Warn("chat or company missing, opening a new chat", "code", code)
			default:
				c.to(StateError)
				h.onError(code, res.event.Error)
				return &ServerError{Code: code, Message: res.event.Error}
			}
			c.to(StateError)
			if err := c.creds.Clear(); err != nil {
				c.logger.Warn("could not clear credentials", "error", err)
			}
			if err := c.backoff(ctx, h); err != nil {
				if c.aborted(ctx) {
					c.to(StateCancelled)
					return nil
				}
				return err
			}

		default:
			c.to(StateError)
			h.onError(protocol.CodeTransport, res.err.Error())
			return res.err
		}
	}
}

// exchangeResult is exactly one of: a done event's text, a terminal error
// event, or a transport failure.
type exchangeResult struct {
	done  *string
	event *protocol.Event
	err   error
}

func (c *Client) exchange(ctx context.Context, creds Credentials, req dtos.StreamRequest, h Handlers) exchangeResult {
	var (
		result exchangeResult
		text   strings.Builder
	)
	onEvent := func(raw []byte) error {
		ev, err := protocol.Parse(raw)
		if err != nil {
			c.logger.Warn("skipping unparseable event", "error", err)
			return nil
		}
		switch ev.Type {
		case protocol.EventStart, protocol.EventConnected:
			c.enterReceiving()
		case protocol.EventChunk:
			c.enterReceiving()
			text.WriteString(ev.Content)
			h.onChunk(ev.Content)
		case protocol.EventDone:
			full := ev.Full()
			if full == "" {
				full = text.String()
			}
			result.done = &full
			return errStop
		case protocol.EventError:
			result.event = &ev
			return errStop
		default:
			if ev.Error != "" {
				result.event = &ev
				return errStop
			}
			c.enterReceiving()
			h.onSpecial(ev)
		}
		return nil
	}

	transport := c.primary
	if !c.opts.StreamingBodies {
		transport = c.fallback
	}
	err := transport.Stream(ctx, creds, req, onEvent)

	var terr *TransportError
	if err != nil && transport == c.primary && errors.As(err, &terr) && !terr.Consumed && ctx.Err() == nil {
		c.logger.Warn("chunked transport failed, falling back to SSE", "error", err)
		err = c.fallback.Stream(ctx, creds, req, onEvent)
	}

	if result.done != nil || result.event != nil {
		return result
	}
	if err == nil {
		err = &TransportError{Transport: transport.Name(), Consumed: true, Err: errors.New("stream ended without a terminal event")}
	}
	result.err = err
	return result
}

func (c *Client) resolveSession(ctx context.Context) (Credentials, error) {
	if creds, ok := c.creds.Load(); ok {
		return creds, nil
	}
	creds, _, err := c.CreateChat(ctx)
	return creds, err
}

// backoff reserves a reconnect and waits for its delay.
func (c *Client) backoff(ctx context.Context, h Handlers) error {
	delay, ok := c.policy.next(c.now())
	if !ok {
		c.logger.Error("reconnect limit reached", "attempts", c.opts.MaxReconnectAttempts)
		h.onError(protocol.CodeReconnectLimit, "unable to reconnect, please try again later")
		return ErrReconnectLimit
	}
	c.to(StateRetrying)
	c.logger.Info("reconnecting", "attempt", c.policy.used(), "delay", delay.String())
	return c.sleep(ctx, delay)
}

func (c *Client) enterReceiving() {
	if c.machine.current() == StateSending {
		c.to(StateReceiving)
	}
}

func (c *Client) aborted(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled || ctx.Err() != nil
}

func (c *Client) to(s State) {
	if err := c.machine.transition(s); err != nil {
		panic(err)
	}
}

func isTokenCode(code string) bool {
	switch code {
	case protocol.CodeTokenInvalid, protocol.CodeTokenExpired, protocol.CodeUnauthorized:
		return true
	}
	return false
}

func isNotFoundCode(code string) bool {
	return code == protocol.CodeChatNotFound || code == protocol.CodeCompanyNotFound
}

func errorCode(err error) (string, string) {
	var serr *ServerError
	if errors.As(err, &serr) {
		return serr.Code, serr.Message
	}
	return protocol.CodeTransport, err.Error()
}

func (h Handlers) onChunk(text string) {
	if h.OnChunk != nil {
		h.OnChunk(text)
	}
}

func (h Handlers) onSpecial(ev protocol.Event) {
	if h.OnSpecialEvent != nil {
		h.OnSpecialEvent(ev)
	}
}

func (h Handlers) onDone(text string) {
	if h.OnDone != nil {
		h.OnDone(text)
	}
}

func (h Handlers) onError(code, message string) {
	if h.OnError != nil {
		h.OnError(code, message)
	}
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
