// File: internal/services/ai/config.go
package ai

import (
    "fmt"
    "time"
)

type Config struct {
    // Embedding Configuration
    EmbeddingKey     string
    EmbeddingBaseURL string
    EmbeddingModel   string

    // LLM Configuration
    LLMKey     string
    LLMBaseURL string
    // UtilityModel answers the small structured calls: email-intent
    // detection and conversation summaries.
    UtilityModel string

    // Performance Configuration
    Timeout    time.Duration
    MaxRetries int
    RetryDelay time.Duration

    // Model Parameters
    Temperature float32
    TopP        float32
}

func (c *Config) Validate() error {
    if c.EmbeddingKey == "" {
        return fmt.Errorf("OPENAI_EMBEDDING_KEY is required")
    }
    if c.LLMKey == "" {
        return fmt.Errorf("OPENAI_API_KEY is required")
    }
    if c.EmbeddingModel == "" {
        return fmt.Errorf("OPENAI_EMBEDDING_MODEL is required")
    }
    if c.UtilityModel == "" {
        return fmt.Errorf("OPENAI_UTILITY_MODEL is required")
    }
    if c.Timeout <= 0 {
        return fmt.Errorf("timeout must be positive")
    }
    if c.MaxRetries < 1 {
        return fmt.Errorf("max retries must be at least 1")
    }
    return nil
}

func DefaultConfig() *Config {
    return &Config{
        EmbeddingModel: "text-embedding-3-small",
        UtilityModel:   "gpt-4o-mini",
        Timeout:        30 * time.Second,
        MaxRetries:     3,
        RetryDelay:     time.Second,
        Temperature:    0.1,
        TopP:           0.9,
    }
}
