// Package background runs work that must never hold up a chat stream.
package background

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

const KindEmailCapture = "email_capture"

// Job is the unit handed to a Dispatcher. It is JSON encoded when it
// travels through RabbitMQ.
type Job struct {
	ID         string    `json:"job_id"`
	Kind       string    `json:"kind"`
	ChatID     string    `json:"chat_id"`
	Email      string    `json:"email,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob stamps a job with a ULID and the current time.
func NewJob(kind, chatID string) Job {
	return Job{
		ID:         ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Kind:       kind,
		ChatID:     chatID,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (j Job) Validate() error {
	if j.ID == "" || j.Kind == "" || j.ChatID == "" {
		return errors.New("background: job requires id, kind and chat id")
	}
	return nil
}

// Handler executes one job.
type Handler func(ctx context.Context, job Job) error

// Dispatcher accepts jobs for asynchronous execution. Dispatch must not
// block on the job itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
	Close(ctx context.Context) error
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}
