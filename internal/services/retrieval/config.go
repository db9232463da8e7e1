package retrieval

import (
    "errors"
    "time"
)

type Config struct {
    // Pinecone connection. Each company's IndexName is used as the namespace.
    APIKey    string
    IndexHost string

    // Query settings
    TopK            int
    MinScore        float32
    MetadataTextKey string
    MaxContextChars int

    // Operation settings
    Timeout    time.Duration
    MaxRetries int
    RetryDelay time.Duration
}

func DefaultConfig() *Config {
    return &Config{
        TopK:            5,
        MinScore:        0.2,
        MetadataTextKey: "text",
        MaxContextChars: 6000,
        Timeout:         8 * time.Second,
        MaxRetries:      2,
        RetryDelay:      300 * time.Millisecond,
    }
}

func (c *Config) Validate() error {
    if c.IndexHost == "" {
        return errors.New("pinecone index host is required")
    }
    if c.APIKey == "" {
        return errors.New("pinecone API key is required")
    }
    if c.TopK <= 0 {
        return errors.New("topK must be positive")
    }
    if c.Timeout <= 0 {
        return errors.New("timeout must be positive")
    }
    if c.MaxRetries < 0 {
        return errors.New("max retries cannot be negative")
    }
    return nil
}
