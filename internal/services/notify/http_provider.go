package notify

import (
    "context"
    "encoding/json"
    "io"
    "net/http"
)

// HTTPProvider posts template sends to a transactional email API.
type HTTPProvider struct {
    config *Config
    fetch  Fetcher
}

func NewHTTPProvider(config *Config, fetch Fetcher) *HTTPProvider {
    return &HTTPProvider{config: config, fetch: fetch}
}

func (p *HTTPProvider) SendTemplate(ctx context.Context, templateID, recipient string, data map[string]string) error {
    payload := map[string]interface{}{
        "template_id": templateID,
        "to":          recipient,
        "data":        data,
    }
    if p.config.FromAddress != "" {
        payload["from"] = p.config.FromAddress
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return &NotifyError{Type: ErrTypeValidation, Message: "invalid payload", Cause: err}
    }

    header := http.Header{}
    header.Set("Content-Type", "application/json")
    header.Set("X-API-KEY", p.config.APIKey)

    resp, err := p.fetch.Request(ctx, http.MethodPost, p.config.APIURL, body, header)
    if err != nil {
        return &NotifyError{Type: ErrTypeNetwork, Message: "request failed", Cause: err}
    }
    defer resp.Body.Close()

    return p.handleResponse(resp)
}

func (p *HTTPProvider) handleResponse(resp *http.Response) error {
    if resp.StatusCode >= 200 && resp.StatusCode < 300 {
        io.Copy(io.Discard, resp.Body)
        return nil
    }

    responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

    if resp.StatusCode == http.StatusTooManyRequests {
        return &NotifyError{
            Type:    ErrTypeRateLimit,
            Code:    resp.StatusCode,
            Message: "rate limit exceeded",
        }
    }

    return &NotifyError{
        Type:    ErrTypeProvider,
        Code:    resp.StatusCode,
        Message: string(responseBody),
    }
}
