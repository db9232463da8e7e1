package ai

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iyunix/go-chatwidget/internal/services"
    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
    t.Helper()
    srv := httptest.NewServer(handler)
    t.Cleanup(srv.Close)

    cfg := DefaultConfig()
    cfg.LLMKey = "sk-llm"
    cfg.EmbeddingKey = "sk-embed"
    cfg.LLMBaseURL = srv.URL + "/v1"
    cfg.EmbeddingBaseURL = srv.URL + "/v1"
    cfg.RetryDelay = time.Millisecond
    require.NoError(t, cfg.Validate())
    return NewOpenAIProvider(cfg, &services.NoOpLogger{})
}

func completionBody(content string) string {
    payload, _ := json.Marshal(map[string]interface{}{
        "id":     "chatcmpl-1",
        "object": "chat.completion",
        "choices": []map[string]interface{}{{
            "index":         0,
            "message":       map[string]string{"role": "assistant", "content": content},
            "finish_reason": "stop",
        }},
    })
    return string(payload)
}

func TestOpenAIProvider_CreateEmbedding(t *testing.T) {
    p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/v1/embeddings", r.URL.Path)
        assert.Equal(t, "Bearer sk-embed", r.Header.Get("Authorization"))
        fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"model":"text-embedding-3-small"}`)
    })

    vec, err := p.CreateEmbedding(context.Background(), "hello")
    require.NoError(t, err)
    assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestOpenAIProvider_DetectEmailIntent(t *testing.T) {
    p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
        var req map[string]interface{}
        assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
        format, _ := req["response_format"].(map[string]interface{})
        assert.Equal(t, "json_object", format["type"])
        fmt.Fprint(w, completionBody(`{"requests_email":true,"subject":" Pricing follow-up ","summary":"Visitor asked about enterprise pricing."}`))
    })

    intent, err := p.DetectEmailIntent(context.Background(), "Could you share your email so sales can reach out?", []Turn{
        {Role: "user", Content: "How much is the enterprise plan?"},
    })
    require.NoError(t, err)
    assert.True(t, intent.RequestsEmail)
    assert.Equal(t, "Pricing follow-up", intent.Subject)
}

func TestOpenAIProvider_DetectEmailIntentBadJSON(t *testing.T) {
    p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
        fmt.Fprint(w, completionBody(`definitely`))
    })

    _, err := p.DetectEmailIntent(context.Background(), "reply", nil)
    var aiErr *AIError
    require.ErrorAs(t, err, &aiErr)
    assert.Equal(t, ErrTypeModel, aiErr.Type)
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
    var calls int32
    p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
        if atomic.AddInt32(&calls, 1) == 1 {
            w.WriteHeader(http.StatusBadGateway)
            fmt.Fprint(w, `{"error":{"message":"upstream","type":"server_error"}}`)
            return
        }
        fmt.Fprint(w, completionBody("- needs a refund"))
    })

    summary, err := p.Summarize(context.Background(), []Turn{{Role: "user", Content: "refund please"}})
    require.NoError(t, err)
    assert.Equal(t, "- needs a refund", summary)
    assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_DoesNotRetryClientErrors(t *testing.T) {
    var calls int32
    p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
        atomic.AddInt32(&calls, 1)
        w.WriteHeader(http.StatusBadRequest)
        fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
    })

    _, err := p.GetCompletion(context.Background(), "gpt-4o-mini", "hi")
    assert.Error(t, err)
    assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_StreamTranslatesChunks(t *testing.T) {
    p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/v1/chat/completions", r.URL.Path)
        w.Header().Set("Content-Type", "text/event-stream")
        for _, piece := range []string{"Hel", "lo"} {
            fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
        }
        fmt.Fprint(w, "data: [DONE]\n\n")
    })

    var types []string
    var text strings.Builder
    err := p.Stream(context.Background(), modelstream.Request{
        Model:        "gpt-4o-mini",
        Instructions: "be brief",
        Input:        []modelstream.InputMessage{{Role: "user", Content: "hi"}},
    }, func(ev modelstream.Event) error {
        types = append(types, ev.Type())
        text.WriteString(modelstream.Decode(ev).Text)
        return nil
    })
    require.NoError(t, err)
    assert.Equal(t, "Hello", text.String())
    assert.Equal(t, []string{
        modelstream.TypeCreated,
        modelstream.TypeOutputTextDelta,
        modelstream.TypeOutputTextDelta,
        modelstream.TypeOutputTextDone,
        modelstream.TypeCompleted,
    }, types)
}
