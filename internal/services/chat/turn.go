package chat

import (
    "fmt"
    "sync"
)

// State is a step of one chat turn.
type State string

const (
    StateSetup                      State = "setup"
    StatePersistingUserMessage      State = "persisting_user_message"
    StateRetrievingContext          State = "retrieving_context"
    StateStreamingModel             State = "streaming_model"
    StatePersistingAssistantMessage State = "persisting_assistant_message"
    StateSideChannelDetection       State = "side_channel_detection"
    StateDone                       State = "done"
    StateFailed                     State = "failed"
)

var turnTransitions = map[State]State{
    StateSetup:                      StatePersistingUserMessage,
    StatePersistingUserMessage:      StateRetrievingContext,
    StateRetrievingContext:          StateStreamingModel,
    StateStreamingModel:             StatePersistingAssistantMessage,
    StatePersistingAssistantMessage: StateSideChannelDetection,
    StateSideChannelDetection:       StateDone,
}

// Turn records the progress of one request through the pipeline. It is
// safe to inspect from other goroutines while the turn runs.
type Turn struct {
    mu      sync.Mutex
    state   State
    history []State
    err     error

    specialSent bool
}

func newTurn() *Turn {
    return &Turn{state: StateSetup, history: []State{StateSetup}}
}

func (t *Turn) State() State {
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.state
}

// History lists every state the turn entered, in order.
func (t *Turn) History() []State {
    t.mu.Lock()
    defer t.mu.Unlock()
    return append([]State(nil), t.history...)
}

// Err is the failure that moved the turn to StateFailed.
func (t *Turn) Err() error {
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.err
}

func (t *Turn) advance(next State) error {
    t.mu.Lock()
    defer t.mu.Unlock()
    if turnTransitions[t.state] != next {
        return fmt.Errorf("chat: illegal turn transition %s -> %s", t.state, next)
    }
    t.state = next
    t.history = append(t.history, next)
    return nil
}

func (t *Turn) fail(err error) {
    t.mu.Lock()
    defer t.mu.Unlock()
    if t.state == StateDone || t.state == StateFailed {
        return
    }
    t.state = StateFailed
    t.err = err
    t.history = append(t.history, StateFailed)
}

// claimSpecial returns true exactly once per turn.
func (t *Turn) claimSpecial() bool {
    t.mu.Lock()
    defer t.mu.Unlock()
    if t.specialSent {
        return false
    }
    t.specialSent = true
    return true
}
