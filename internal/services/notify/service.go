package notify

import (
    "bytes"
    "context"
    "net/mail"
    "strings"

    "github.com/yuin/goldmark"
    "github.com/yuin/goldmark/extension"
)

// Service sends the lead notifications raised by email capture.
type Service struct {
    provider Provider
    config   *Config
    logger   Logger
    markdown goldmark.Markdown
}

func NewService(provider Provider, config *Config, logger Logger) *Service {
    return &Service{
        provider: provider,
        config:   config,
        logger:   logger,
        markdown: goldmark.New(goldmark.WithExtensions(extension.Linkify)),
    }
}

// Send delivers templateID to recipient. Any data key ending in "_markdown"
// is also rendered to HTML under the same name with an "_html" suffix. The
// bool is false when nothing was sent because notifications are disabled.
func (s *Service) Send(ctx context.Context, templateID, recipient string, data map[string]string) (bool, error) {
    if !s.config.Enabled() {
        s.logger.Debug("notifications disabled, skipping send", "template", templateID)
        return false, nil
    }
    if _, err := mail.ParseAddress(recipient); err != nil {
        return false, &NotifyError{Type: ErrTypeValidation, Message: "invalid recipient", Cause: err}
    }
    if templateID == "" {
        templateID = s.config.TemplateID
    }

    payload := make(map[string]string, len(data)*2)
    for k, v := range data {
        payload[k] = v
        if base, ok := strings.CutSuffix(k, "_markdown"); ok {
            html, err := s.RenderMarkdown(v)
            if err != nil {
                return false, &NotifyError{Type: ErrTypeValidation, Message: "rendering " + k, Cause: err}
            }
            payload[base+"_html"] = html
        }
    }

    if err := s.provider.SendTemplate(ctx, templateID, recipient, payload); err != nil {
        s.logger.Error("notification failed", "template", templateID, "error", err)
        return false, err
    }
    s.logger.Info("notification sent", "template", templateID)
    return true, nil
}

// RenderMarkdown converts model-written markdown into email-safe HTML.
func (s *Service) RenderMarkdown(md string) (string, error) {
    var buf bytes.Buffer
    if err := s.markdown.Convert([]byte(md), &buf); err != nil {
        return "", err
    }
    return buf.String(), nil
}
