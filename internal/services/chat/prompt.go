package chat

import (
    "fmt"
    "strings"
    "time"
    "unicode/utf8"

    "github.com/iyunix/go-chatwidget/internal/domain"
    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
)

const defaultSystemPrompt = "You are a friendly assistant embedded on a company website. Answer briefly and accurately."

// PromptBuilder assembles the model request for a turn.
type PromptBuilder struct {
    config *Config
    logger Logger
}

func NewPromptBuilder(config *Config, logger Logger) *PromptBuilder {
    return &PromptBuilder{
        config: config,
        logger: logger,
    }
}

// TruncateText safely truncates a UTF-8 string to maxLen runes, preserving character integrity
func (pb *PromptBuilder) TruncateText(input string, maxLen int) string {
    if input == "" || maxLen <= 0 {
        return ""
    }

    if utf8.RuneCountInString(input) <= maxLen {
        return input
    }

    var b strings.Builder
    count := 0

    for _, r := range input {
        if count >= maxLen {
            break
        }
        b.WriteRune(r)
        count++
    }

    return b.String()
}

// LocalTime renders now in the visitor's zone. Unknown zones fall back to UTC.
func (pb *PromptBuilder) LocalTime(now time.Time, timezone string) string {
    loc := time.UTC
    if timezone != "" {
        if l, err := time.LoadLocation(timezone); err == nil {
            loc = l
        } else {
            pb.logger.Debug("unknown timezone, using UTC", "timezone", timezone)
        }
    }
    return fmt.Sprintf("%s (%s)", now.In(loc).Format("Monday, 2 January 2006 15:04"), loc.String())
}

// BuildInstructions is the system prompt: company prompt, retrieved context
// and the visitor's local time.
func (pb *PromptBuilder) BuildInstructions(company *domain.Company, retrieved string, timezone string, now time.Time) string {
    var b strings.Builder

    prompt := strings.TrimSpace(company.SystemPrompt)
    if prompt == "" {
        prompt = defaultSystemPrompt
    }
    b.WriteString(prompt)

    if retrieved = strings.TrimSpace(retrieved); retrieved != "" {
        b.WriteString("\n\nUse the following company information when it is relevant:\n")
        b.WriteString(retrieved)
    }

    b.WriteString("\n\nCurrent local time for the visitor: ")
    b.WriteString(pb.LocalTime(now, timezone))
    return b.String()
}

// BuildInput converts the newest messages of the transcript, already in
// sequence order, into model input.
func (pb *PromptBuilder) BuildInput(transcript []domain.Message) []modelstream.InputMessage {
    if len(transcript) > pb.config.HistoryLimit {
        transcript = transcript[len(transcript)-pb.config.HistoryLimit:]
    }

    input := make([]modelstream.InputMessage, 0, len(transcript))
    for _, m := range transcript {
        if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
            continue
        }
        input = append(input, modelstream.InputMessage{Role: string(m.Role), Content: m.Content})
    }
    return input
}
