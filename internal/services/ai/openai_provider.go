// File: internal/services/ai/openai_provider.go
package ai

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    openai "github.com/sashabaranov/go-openai"

    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
)

const emailIntentPrompt = `You review replies written by a customer-support assistant.
Decide whether the reply asks the visitor to share their email address so a human can follow up.
Respond with a JSON object: {"requests_email": bool, "subject": string, "summary": string}.
"subject" is a short follow-up subject line and "summary" two or three sentences summarising the conversation. Leave both empty when requests_email is false.`

const summaryPrompt = `Summarise this support conversation for the team that will follow up by email.
Use short markdown bullet points: the visitor's need, what was already answered, and what remains open.`

type OpenAIProvider struct {
    config          *Config
    embeddingClient *openai.Client
    llmClient       *openai.Client
    logger          Logger
}

func NewOpenAIProvider(config *Config, logger Logger) *OpenAIProvider {
    llmConfig := openai.DefaultConfig(config.LLMKey)
    if config.LLMBaseURL != "" {
        llmConfig.BaseURL = config.LLMBaseURL
    }
    llmClient := openai.NewClientWithConfig(llmConfig)

    embeddingConfig := openai.DefaultConfig(config.EmbeddingKey)
    if config.EmbeddingBaseURL != "" {
        embeddingConfig.BaseURL = config.EmbeddingBaseURL
    }
    embeddingClient := openai.NewClientWithConfig(embeddingConfig)

    return &OpenAIProvider{
        config:          config,
        embeddingClient: embeddingClient,
        llmClient:       llmClient,
        logger:          logger,
    }
}

func (p *OpenAIProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
    var embedding []float32
    err := p.withRetry(ctx, "embedding", func(ctx context.Context) error {
        resp, err := p.embeddingClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
            Input: []string{text},
            Model: openai.EmbeddingModel(p.config.EmbeddingModel),
        })
        if err != nil {
            return err
        }
        if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
            return &AIError{Type: ErrTypeProvider, Operation: "embedding", Message: "empty embedding response"}
        }
        embedding = resp.Data[0].Embedding
        return nil
    })
    if err != nil {
        return nil, NewProviderError("embedding", "failed to create embedding", err)
    }
    return embedding, nil
}

func (p *OpenAIProvider) GetCompletion(ctx context.Context, model, prompt string) (string, error) {
    return p.complete(ctx, "completion", openai.ChatCompletionRequest{
        Model: model,
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleUser, Content: prompt},
        },
        Temperature: p.config.Temperature,
        TopP:        p.config.TopP,
    })
}

// DetectEmailIntent asks the utility model, in JSON mode, whether the reply
// requests the visitor's email.
func (p *OpenAIProvider) DetectEmailIntent(ctx context.Context, assistantReply string, transcript []Turn) (EmailIntent, error) {
    var convo strings.Builder
    for _, t := range transcript {
        fmt.Fprintf(&convo, "%s: %s\n", t.Role, t.Content)
    }

    raw, err := p.complete(ctx, "email_intent", openai.ChatCompletionRequest{
        Model: p.config.UtilityModel,
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleSystem, Content: emailIntentPrompt},
            {Role: openai.ChatMessageRoleUser, Content: "Conversation:\n" + convo.String() + "\nReply to review:\n" + assistantReply},
        },
        ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
        Temperature:    0,
    })
    if err != nil {
        return EmailIntent{}, err
    }

    var intent EmailIntent
    if err := json.Unmarshal([]byte(raw), &intent); err != nil {
        return EmailIntent{}, NewModelError("email_intent", p.config.UtilityModel, "invalid JSON verdict", err)
    }
    intent.Subject = strings.TrimSpace(intent.Subject)
    intent.Summary = strings.TrimSpace(intent.Summary)
    return intent, nil
}

// Summarize returns a markdown summary of the transcript.
func (p *OpenAIProvider) Summarize(ctx context.Context, transcript []Turn) (string, error) {
    msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: summaryPrompt}}
    for _, t := range transcript {
        role := openai.ChatMessageRoleUser
        if t.Role == "assistant" {
            role = openai.ChatMessageRoleAssistant
        }
        msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
    }
    return p.complete(ctx, "summary", openai.ChatCompletionRequest{
        Model:       p.config.UtilityModel,
        Messages:    msgs,
        Temperature: p.config.Temperature,
    })
}

// Stream adapts the chat completions stream to modelstream events for
// providers that do not serve /responses.
func (p *OpenAIProvider) Stream(ctx context.Context, req modelstream.Request, onEvent func(modelstream.Event) error) error {
    msgs := make([]openai.ChatCompletionMessage, 0, len(req.Input)+1)
    if req.Instructions != "" {
        msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Instructions})
    }
    for _, in := range req.Input {
        msgs = append(msgs, openai.ChatCompletionMessage{Role: in.Role, Content: in.Content})
    }

    chatReq := openai.ChatCompletionRequest{
        Model:     req.Model,
        Messages:  msgs,
        MaxTokens: req.MaxOutputTokens,
        TopP:      p.config.TopP,
    }
    if req.Temperature != nil {
        chatReq.Temperature = *req.Temperature
    }

    stream, err := p.llmClient.CreateChatCompletionStream(ctx, chatReq)
    if err != nil {
        return NewProviderError("streaming", "failed to create stream", err)
    }
    defer stream.Close()

    if err := onEvent(modelstream.Created{}); err != nil {
        return err
    }

    var full strings.Builder
    for {
        response, err := stream.Recv()
        if errors.Is(err, io.EOF) {
            break
        }
        if err != nil {
            return NewProviderError("streaming", "stream receive error", err)
        }
        if len(response.Choices) == 0 {
            continue
        }
        delta := response.Choices[0].Delta.Content
        if delta == "" {
            continue
        }
        full.WriteString(delta)
        if err := onEvent(modelstream.OutputTextDelta{ItemID: response.ID, Delta: delta}); err != nil {
            return err
        }
    }

    if err := onEvent(modelstream.OutputTextDone{Text: full.String()}); err != nil {
        return err
    }
    return onEvent(modelstream.Completed{})
}

func (p *OpenAIProvider) complete(ctx context.Context, operation string, req openai.ChatCompletionRequest) (string, error) {
    var reply string
    err := p.withRetry(ctx, operation, func(ctx context.Context) error {
        resp, err := p.llmClient.CreateChatCompletion(ctx, req)
        if err != nil {
            return err
        }
        if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
            return &AIError{Type: ErrTypeProvider, Operation: operation, Message: "empty completion response"}
        }
        reply = resp.Choices[0].Message.Content
        return nil
    })
    if err != nil {
        return "", NewProviderError(operation, "failed to create completion", err)
    }
    return reply, nil
}

// withRetry gives every attempt its own timeout and retries transient
// failures with a linearly growing delay.
func (p *OpenAIProvider) withRetry(ctx context.Context, operation string, call func(ctx context.Context) error) error {
    var lastErr error
    for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
        attemptCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
        err := call(attemptCtx)
        cancel()
        if err == nil {
            return nil
        }
        lastErr = err

        if ctx.Err() != nil || !isRetryable(err) || attempt == p.config.MaxRetries {
            break
        }

        p.logger.Warn("AI call failed, retrying", "operation", operation, "attempt", attempt, "error", err)
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(attempt) * p.config.RetryDelay):
        }
    }
    p.logger.Error("AI call failed", "operation", operation, "error", lastErr)
    return lastErr
}

func isRetryable(err error) bool {
    var apiErr *openai.APIError
    if errors.As(err, &apiErr) {
        return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
    }
    var reqErr *openai.RequestError
    if errors.As(err, &reqErr) {
        return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
    }
    var aiErr *AIError
    if errors.As(err, &aiErr) {
        return aiErr.Type == ErrTypeProvider
    }
    // Transport failures and per-attempt timeouts.
    return true
}

var (
    _ EmbeddingProvider  = (*OpenAIProvider)(nil)
    _ CompletionProvider = (*OpenAIProvider)(nil)
    _ ChatStreamer       = (*OpenAIProvider)(nil)
)
