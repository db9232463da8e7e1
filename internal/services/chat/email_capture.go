package chat

import (
    "context"
    "fmt"
    "net/mail"
    "regexp"
    "strings"

    "github.com/iyunix/go-chatwidget/internal/repository"
    "github.com/iyunix/go-chatwidget/internal/services/background"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmail finds the first plausible email address in text.
func ExtractEmail(text string) (string, bool) {
    for _, candidate := range emailPattern.FindAllString(text, -1) {
        candidate = strings.Trim(candidate, ".")
        if addr, err := mail.ParseAddress(candidate); err == nil {
            return strings.ToLower(addr.Address), true
        }
    }
    return "", false
}

// EmailCapture handles email_capture jobs: it summarises the chat, tells
// the company about the lead and records the address on the chat.
type EmailCapture struct {
    store      repository.Store
    summarizer Summarizer
    notifier   Notifier
    templateID string
    logger     Logger
}

func NewEmailCapture(store repository.Store, summarizer Summarizer, notifier Notifier, templateID string, logger Logger) *EmailCapture {
    return &EmailCapture{
        store:      store,
        summarizer: summarizer,
        notifier:   notifier,
        templateID: templateID,
        logger:     logger,
    }
}

// Handle is a background.Handler.
func (ec *EmailCapture) Handle(ctx context.Context, job background.Job) error {
    if job.Kind != background.KindEmailCapture {
        return fmt.Errorf("email capture: unexpected job kind %q", job.Kind)
    }
    if job.Email == "" {
        return fmt.Errorf("email capture: job %s has no email", job.ID)
    }

    chat, err := ec.store.GetChatByID(ctx, job.ChatID)
    if err != nil {
        return fmt.Errorf("email capture: loading chat: %w", err)
    }
    if chat.HasEmail() {
        ec.logger.Debug("chat already has an email, skipping capture", "chat_id", chat.ID)
        return nil
    }

    transcript, err := ec.store.ListBySequenceAsc(ctx, chat.ID)
    if err != nil {
        return fmt.Errorf("email capture: loading transcript: %w", err)
    }

    summary, err := ec.summarizer.Summarize(ctx, toTurns(transcript))
    if err != nil {
        ec.logger.Warn("summary failed, notifying without it", "chat_id", chat.ID, "error", err)
        summary = ""
    }

    company, err := ec.store.GetCompanyByID(ctx, chat.CompanyID)
    switch {
    case err != nil:
        ec.logger.Warn("company lookup failed, skipping notification", "chat_id", chat.ID, "error", err)
    case company.NotificationEmail == "":
        ec.logger.Debug("company has no notification address", "company_id", company.ID)
    default:
        sent, err := ec.notifier.Send(ctx, ec.templateID, company.NotificationEmail, map[string]string{
            "visitor_email":    job.Email,
            "chat_id":          chat.ID,
            "company_name":     company.Name,
            "summary_markdown": summary,
        })
        if err != nil {
            ec.logger.Error("lead notification failed", "chat_id", chat.ID, "error", err)
        } else if sent {
            ec.logger.Info("lead notification sent", "chat_id", chat.ID, "company_id", company.ID)
        }
    }

    updated, err := ec.store.UpdateEmail(ctx, chat.ID, job.Email)
    if err != nil {
        return fmt.Errorf("email capture: saving email: %w", err)
    }
    if !updated {
        ec.logger.Debug("email was captured concurrently", "chat_id", chat.ID)
    }
    return nil
}
