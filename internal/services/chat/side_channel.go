package chat

import (
    "context"
    "crypto/rand"
    "time"

    "github.com/oklog/ulid/v2"

    "github.com/iyunix/go-chatwidget/internal/domain"
    "github.com/iyunix/go-chatwidget/internal/protocol"
    "github.com/iyunix/go-chatwidget/internal/services/ai"
)

// SideChannel inspects a finished reply for structured follow-ups that are
// delivered to the client as special events.
type SideChannel struct {
    detector EmailDetector
    timeout  time.Duration
    logger   Logger
}

func NewSideChannel(detector EmailDetector, timeout time.Duration, logger Logger) *SideChannel {
    return &SideChannel{detector: detector, timeout: timeout, logger: logger}
}

// Detect returns the special event the reply calls for, or nil. It never
// runs longer than the configured timeout.
func (sc *SideChannel) Detect(ctx context.Context, reply string, transcript []domain.Message) (*protocol.Event, error) {
    if sc == nil || sc.detector == nil {
        return nil, nil
    }

    ctx, cancel := context.WithTimeout(ctx, sc.timeout)
    defer cancel()

    intent, err := sc.detector.DetectEmailIntent(ctx, reply, toTurns(transcript))
    if err != nil {
        return nil, &ChatError{Type: ErrTypeSideChannel, Operation: "detect_email_intent", Message: "detection failed", Cause: err}
    }
    if !intent.RequestsEmail {
        return nil, nil
    }

    id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
    ev, err := protocol.RequestEmail(id, protocol.EmailRequestDetails{
        Subject:             intent.Subject,
        ConversationSummary: intent.Summary,
    })
    if err != nil {
        return nil, &ChatError{Type: ErrTypeSideChannel, Operation: "encode_event", Message: "could not encode event", Cause: err}
    }
    return &ev, nil
}

// detection is the outcome of an asynchronous Detect call.
type detection struct {
    event *protocol.Event
    err   error
}

// start runs Detect on its own goroutine. The channel always receives
// exactly one value.
func (sc *SideChannel) start(ctx context.Context, reply string, transcript []domain.Message) <-chan detection {
    out := make(chan detection, 1)
    go func() {
        ev, err := sc.Detect(ctx, reply, transcript)
        out <- detection{event: ev, err: err}
    }()
    return out
}

func toTurns(transcript []domain.Message) []ai.Turn {
    turns := make([]ai.Turn, 0, len(transcript))
    for _, m := range transcript {
        if m.Role == domain.RoleSystem {
            continue
        }
        turns = append(turns, ai.Turn{Role: string(m.Role), Content: m.Content})
    }
    return turns
}
