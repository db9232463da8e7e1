package notify

import (
    "fmt"
    "time"
)

type Config struct {
    APIKey      string
    APIURL      string
    TemplateID  string
    FromAddress string
    Timeout     time.Duration
}

// Enabled reports whether an email provider is configured at all.
func (c *Config) Enabled() bool {
    return c.APIURL != ""
}

func (c *Config) Validate() error {
    if !c.Enabled() {
        return nil
    }
    if c.APIKey == "" {
        return fmt.Errorf("NOTIFY_API_KEY is required")
    }
    if c.TemplateID == "" {
        return fmt.Errorf("NOTIFY_TEMPLATE_ID is required")
    }
    if c.Timeout <= 0 {
        return fmt.Errorf("timeout must be positive")
    }
    return nil
}

func DefaultConfig() *Config {
    return &Config{
        Timeout: 10 * time.Second,
    }
}
