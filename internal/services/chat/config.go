// File: internal/services/chat/config.go
package chat

import (
    "fmt"
    "time"
)

// DefaultFallbackReply is persisted and returned when the model produced no
// text at all.
const DefaultFallbackReply = "I'm sorry, I wasn't able to generate a response. Please try again."

type Config struct {
    // Model Configuration
    Model           string  // used when the company does not pick one
    Temperature     float32
    MaxOutputTokens int

    // Transcript Configuration
    MaxMessages  int // messages kept per chat after pruning
    HistoryLimit int // most recent messages sent to the model

    // Timeouts
    ModelTimeout       time.Duration
    RetrievalTimeout   time.Duration
    SideChannelTimeout time.Duration
    StoreTimeout       time.Duration

    // SequenceRetries bounds insert attempts after a sequence collision.
    SequenceRetries int

    FallbackReply string

    // NotificationTemplateID is the template used for captured leads.
    NotificationTemplateID string
}

func (c *Config) Validate() error {
    if c.Model == "" {
        return fmt.Errorf("model is required")
    }
    if c.MaxMessages <= 0 {
        return fmt.Errorf("max_messages must be positive")
    }
    if c.HistoryLimit <= 0 {
        return fmt.Errorf("history_limit must be positive")
    }
    if c.ModelTimeout <= 0 || c.StoreTimeout <= 0 {
        return fmt.Errorf("timeouts must be positive")
    }
    if c.SideChannelTimeout <= 0 || c.RetrievalTimeout <= 0 {
        return fmt.Errorf("timeouts must be positive")
    }
    if c.SequenceRetries < 1 {
        return fmt.Errorf("sequence_retries must be at least 1")
    }
    if c.FallbackReply == "" {
        return fmt.Errorf("fallback_reply is required")
    }
    return nil
}

func DefaultConfig() *Config {
    return &Config{
        Model:              "gpt-4o-mini",
        Temperature:        0.3,
        MaxOutputTokens:    1024,
        MaxMessages:        50,
        HistoryLimit:       20,
        ModelTimeout:       90 * time.Second,
        RetrievalTimeout:   8 * time.Second,
        SideChannelTimeout: 5 * time.Second,
        StoreTimeout:       5 * time.Second,
        SequenceRetries:    3,
        FallbackReply:      DefaultFallbackReply,
    }
}
