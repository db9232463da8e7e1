package chat

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"

    "github.com/iyunix/go-chatwidget/internal/domain"
    "github.com/iyunix/go-chatwidget/internal/protocol"
    "github.com/iyunix/go-chatwidget/internal/repository"
    "github.com/iyunix/go-chatwidget/internal/services/ai"
    "github.com/iyunix/go-chatwidget/internal/services/background"
    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
    "github.com/iyunix/go-chatwidget/internal/services/retrieval"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

// memStore is an in-memory repository.Store with a unique sequence check.
type memStore struct {
    mu        sync.Mutex
    chats     map[string]*domain.Chat
    companies map[string]*domain.Company
    messages  map[string][]domain.Message

    conflictsLeft int   // InsertMessage reports this many collisions first
    insertErr     error // returned for assistant inserts when set
    listErr       error
    latestCalls   int
}

func newMemStore() *memStore {
    return &memStore{
        chats:     map[string]*domain.Chat{},
        companies: map[string]*domain.Company{},
        messages:  map[string][]domain.Message{},
    }
}

func (m *memStore) GetChatByID(_ context.Context, id string) (*domain.Chat, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    c, ok := m.chats[id]
    if !ok {
        return nil, repository.ErrChatNotFound
    }
    cp := *c
    return &cp, nil
}

func (m *memStore) GetCompanyByID(_ context.Context, id string) (*domain.Company, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    c, ok := m.companies[id]
    if !ok {
        return nil, repository.ErrCompanyNotFound
    }
    cp := *c
    return &cp, nil
}

func (m *memStore) ListBySequenceAsc(_ context.Context, chatID string) ([]domain.Message, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.listErr != nil {
        return nil, m.listErr
    }
    out := append([]domain.Message(nil), m.messages[chatID]...)
    sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
    return out, nil
}

func (m *memStore) LatestSequenceNumber(_ context.Context, chatID string) (int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.latestCalls++
    var latest int64
    for _, msg := range m.messages[chatID] {
        if msg.SequenceNumber > latest {
            latest = msg.SequenceNumber
        }
    }
    return latest, nil
}

func (m *memStore) InsertMessage(_ context.Context, msg *domain.Message) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.insertErr != nil && msg.Role == domain.RoleAssistant {
        return m.insertErr
    }
    if m.conflictsLeft > 0 {
        m.conflictsLeft--
        // Another writer took this slot.
        m.messages[msg.ChatID] = append(m.messages[msg.ChatID], domain.Message{
            ID: fmt.Sprintf("other-%d", msg.SequenceNumber), ChatID: msg.ChatID, UserID: msg.UserID,
            Role: domain.RoleUser, Content: "concurrent", SequenceNumber: msg.SequenceNumber,
        })
        return repository.ErrSequenceConflict
    }
    for _, existing := range m.messages[msg.ChatID] {
        if existing.SequenceNumber == msg.SequenceNumber {
            return repository.ErrSequenceConflict
        }
    }
    if msg.ID == "" {
        msg.ID = fmt.Sprintf("%s-%d", msg.ChatID, msg.SequenceNumber)
    }
    m.messages[msg.ChatID] = append(m.messages[msg.ChatID], *msg)
    return nil
}

func (m *memStore) InsertChat(_ context.Context, c *domain.Chat) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    cp := *c
    m.chats[c.ID] = &cp
    return nil
}

func (m *memStore) UpdateEmail(_ context.Context, chatID, email string) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    c, ok := m.chats[chatID]
    if !ok {
        return false, repository.ErrChatNotFound
    }
    if c.HasEmail() {
        return false, nil
    }
    c.UserEmail = &email
    return true, nil
}

func (m *memStore) CountAndPruneOldest(_ context.Context, chatID string, keep int) (int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    msgs := m.messages[chatID]
    if len(msgs) <= keep {
        return 0, nil
    }
    sort.Slice(msgs, func(i, j int) bool { return msgs[i].SequenceNumber < msgs[j].SequenceNumber })
    removed := len(msgs) - keep
    m.messages[chatID] = append([]domain.Message(nil), msgs[removed:]...)
    return int64(removed), nil
}

func (m *memStore) transcript(chatID string) []domain.Message {
    out, _ := m.ListBySequenceAsc(context.Background(), chatID)
    return out
}

// fakeModel replays a fixed list of text deltas, then fails with err if set.
type fakeModel struct {
    mu     sync.Mutex
    deltas []string
    err    error
    last   modelstream.Request
}

func (f *fakeModel) Stream(ctx context.Context, req modelstream.Request, onEvent func(modelstream.Event) error) error {
    f.mu.Lock()
    f.last = req
    f.mu.Unlock()
    if err := onEvent(modelstream.Created{}); err != nil {
        return err
    }
    for _, d := range f.deltas {
        if err := ctx.Err(); err != nil {
            return err
        }
        if err := onEvent(modelstream.OutputTextDelta{ItemID: "item", Delta: d}); err != nil {
            return err
        }
    }
    if f.err != nil {
        return f.err
    }
    return onEvent(modelstream.Completed{ResponseID: "resp"})
}

type fakeRetriever struct {
    mu    sync.Mutex
    docs  []retrieval.Document
    err   error
    calls int
}

func (f *fakeRetriever) Search(ctx context.Context, indexName, query string) ([]retrieval.Document, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls++
    return f.docs, f.err
}

func (f *fakeRetriever) FormatContext(docs []retrieval.Document) string {
    out := ""
    for _, d := range docs {
        out += d.Text + "\n"
    }
    return out
}

type fakeDetector struct {
    mu     sync.Mutex
    intent ai.EmailIntent
    err    error
    calls  int
}

func (f *fakeDetector) DetectEmailIntent(ctx context.Context, reply string, transcript []ai.Turn) (ai.EmailIntent, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls++
    return f.intent, f.err
}

func (f *fakeDetector) callCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.calls
}

type fakeDispatcher struct {
    mu   sync.Mutex
    jobs []background.Job
    err  error

    onDispatch func(job background.Job)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, job background.Job) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.onDispatch != nil {
        f.onDispatch(job)
    }
    if f.err != nil {
        return f.err
    }
    f.jobs = append(f.jobs, job)
    return nil
}

func (f *fakeDispatcher) Close(ctx context.Context) error { return nil }

type fakeSummarizer struct {
    summary string
    err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript []ai.Turn) (string, error) {
    return f.summary, f.err
}

type sentNotification struct {
    templateID string
    recipient  string
    data       map[string]string
}

type fakeNotifier struct {
    sent []sentNotification
    err  error
}

func (f *fakeNotifier) Send(ctx context.Context, templateID, recipient string, data map[string]string) (bool, error) {
    if f.err != nil {
        return false, f.err
    }
    f.sent = append(f.sent, sentNotification{templateID, recipient, data})
    return true, nil
}

// recorder collects emitted events; failAfter > 0 makes the nth emit fail.
type recorder struct {
    mu        sync.Mutex
    events    []protocol.Event
    failAfter int
}

func (r *recorder) Emit(ev protocol.Event) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.failAfter > 0 && len(r.events) >= r.failAfter {
        return errors.New("broken pipe")
    }
    r.events = append(r.events, ev)
    return nil
}

func (r *recorder) types() []protocol.EventType {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]protocol.EventType, 0, len(r.events))
    for _, ev := range r.events {
        out = append(out, ev.Type)
    }
    return out
}

func (r *recorder) last() protocol.Event {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.events[len(r.events)-1]
}
