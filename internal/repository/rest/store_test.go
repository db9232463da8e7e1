package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatwidget/internal/domain"
	"github.com/iyunix/go-chatwidget/internal/repository"
	"github.com/iyunix/go-chatwidget/internal/services"
	"github.com/iyunix/go-chatwidget/internal/services/resilient"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Prefer string
	APIKey string
	Body   string
}

type fakePostgREST struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r recordedRequest) (int, string)
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Prefer: r.Header.Get("Prefer"),
		APIKey: r.Header.Get("apikey"),
		Body:   string(body),
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	status, payload := f.respond(rec)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func newTestStore(t *testing.T, respond func(r recordedRequest) (int, string)) (*Store, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := resilient.DefaultRetryConfig()
	fetcher := resilient.NewFetcher(srv.Client(), cfg, &services.NoOpLogger{}).
		WithSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	store, err := NewStore(srv.URL+"/rest/v1/", "anon-key", fetcher)
	require.NoError(t, err)
	return store, fake
}

func TestStore_GetChatByID(t *testing.T) {
	store, fake := newTestStore(t, func(r recordedRequest) (int, string) {
		if r.Query["id"][0] == "eq.c1" {
			return http.StatusOK, `[{"id":"c1","user_id":"u1","company_id":"acme"}]`
		}
		return http.StatusOK, `[]`
	})

	chat, err := store.GetChatByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "acme", chat.CompanyID)

	_, err = store.GetChatByID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrChatNotFound)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, "/rest/v1/chats", fake.requests[0].Path)
	assert.Equal(t, "anon-key", fake.requests[0].APIKey)
}

func TestStore_LatestSequenceNumber(t *testing.T) {
	store, fake := newTestStore(t, func(r recordedRequest) (int, string) {
		if r.Query["chat_id"][0] == "eq.empty" {
			return http.StatusOK, `[]`
		}
		return http.StatusOK, `[{"sequence_number":12}]`
	})

	latest, err := store.LatestSequenceNumber(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), latest)
	assert.Equal(t, []string{"sequence_number.desc"}, fake.requests[0].Query["order"])
	assert.Equal(t, []string{"1"}, fake.requests[0].Query["limit"])

	latest, err = store.LatestSequenceNumber(context.Background(), "empty")
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestStore_InsertMessageConflict(t *testing.T) {
	store, fake := newTestStore(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodGet {
			return http.StatusOK, `[]`
		}
		return http.StatusConflict, `{"code":"23505"}`
	})

	msg := &domain.Message{ChatID: "c1", UserID: "u1", Role: domain.RoleUser, Content: "hi", SequenceNumber: 3}
	err := store.InsertMessage(context.Background(), msg)
	assert.ErrorIs(t, err, repository.ErrSequenceConflict)
	assert.NotEmpty(t, msg.ID)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, []string{"eq." + msg.ID}, fake.requests[1].Query["id"])
}

// messageTable is a PostgREST double with a unique (chat_id,
// sequence_number) constraint. The first commitThenFail POSTs are stored but
// answered with a gateway timeout.
type messageTable struct {
	mu             sync.Mutex
	rows           []domain.Message
	commitThenFail int
	posts          int
}

func (m *messageTable) respond(r recordedRequest) (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		m.posts++
		var row domain.Message
		if err := json.Unmarshal([]byte(r.Body), &row); err != nil {
			return http.StatusBadRequest, `{}`
		}
		for _, existing := range m.rows {
			if existing.ID == row.ID || (existing.ChatID == row.ChatID && existing.SequenceNumber == row.SequenceNumber) {
				return http.StatusConflict, `{"code":"23505"}`
			}
		}
		m.rows = append(m.rows, row)
		if m.commitThenFail > 0 {
			m.commitThenFail--
			return http.StatusGatewayTimeout, ``
		}
		return http.StatusCreated, ``
	case http.MethodGet:
		id := strings.TrimPrefix(r.Query["id"][0], "eq.")
		var out []domain.Message
		for _, row := range m.rows {
			if row.ID == id {
				out = append(out, row)
			}
		}
		data, _ := json.Marshal(out)
		if out == nil {
			data = []byte(`[]`)
		}
		return http.StatusOK, string(data)
	}
	return http.StatusMethodNotAllowed, ``
}

func TestStore_InsertMessageCommittedBeforeGatewayTimeout(t *testing.T) {
	table := &messageTable{commitThenFail: 1}
	store, _ := newTestStore(t, table.respond)

	msg := &domain.Message{ChatID: "c1", UserID: "u1", Role: domain.RoleUser, Content: "Hello", SequenceNumber: 1}
	require.NoError(t, store.InsertMessage(context.Background(), msg))

	assert.Equal(t, 2, table.posts)
	require.Len(t, table.rows, 1)
	assert.Equal(t, msg.ID, table.rows[0].ID)
	assert.Equal(t, int64(1), msg.SequenceNumber)
}

func TestStore_InsertMessageSlotTakenByOtherRow(t *testing.T) {
	table := &messageTable{rows: []domain.Message{
		{ID: "other", ChatID: "c1", UserID: "u2", Role: domain.RoleUser, Content: "first", SequenceNumber: 1},
	}}
	store, _ := newTestStore(t, table.respond)

	msg := &domain.Message{ChatID: "c1", UserID: "u1", Role: domain.RoleUser, Content: "Hello", SequenceNumber: 1}
	err := store.InsertMessage(context.Background(), msg)
	assert.ErrorIs(t, err, repository.ErrSequenceConflict)
	assert.Len(t, table.rows, 1)
}

func TestStore_InsertChatCommittedBeforeGatewayTimeout(t *testing.T) {
	var mu sync.Mutex
	var stored string
	store, _ := newTestStore(t, func(r recordedRequest) (int, string) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			if stored != "" {
				return http.StatusConflict, `{"code":"23505"}`
			}
			stored = r.Body
			return http.StatusGatewayTimeout, ``
		default:
			return http.StatusOK, "[" + stored + "]"
		}
	})

	chat := &domain.Chat{ID: "c1", UserID: "u1", CompanyID: "acme"}
	require.NoError(t, store.InsertChat(context.Background(), chat))
}

func TestStore_InsertMessageSendsRow(t *testing.T) {
	store, fake := newTestStore(t, func(r recordedRequest) (int, string) {
		return http.StatusCreated, ``
	})

	msg := &domain.Message{ChatID: "c1", UserID: "u1", Role: domain.RoleAssistant, Content: "hello", SequenceNumber: 2}
	require.NoError(t, store.InsertMessage(context.Background(), msg))

	require.Len(t, fake.requests, 1)
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(fake.requests[0].Body), &sent))
	assert.Equal(t, "assistant", sent["role"])
	assert.Equal(t, float64(2), sent["sequence_number"])
	assert.Equal(t, "return=minimal", fake.requests[0].Prefer)
}

func TestStore_UpdateEmail(t *testing.T) {
	var patched bool
	store, fake := newTestStore(t, func(r recordedRequest) (int, string) {
		switch r.Method {
		case http.MethodPatch:
			if patched {
				return http.StatusOK, `[]`
			}
			patched = true
			return http.StatusOK, `[{"id":"c1","user_id":"u1","company_id":"acme","user_email":"a@b.co"}]`
		default:
			return http.StatusOK, `[{"id":"c1","user_id":"u1","company_id":"acme","user_email":"a@b.co"}]`
		}
	})

	updated, err := store.UpdateEmail(context.Background(), "c1", "a@b.co")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, []string{"is.null"}, fake.requests[0].Query["user_email"])
	assert.Equal(t, "return=representation", fake.requests[0].Prefer)

	updated, err = store.UpdateEmail(context.Background(), "c1", "other@b.co")
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestStore_CountAndPruneOldest(t *testing.T) {
	store, fake := newTestStore(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodGet {
			return http.StatusOK, `[{"id":"m1"},{"id":"m2"}]`
		}
		return http.StatusNoContent, ``
	})

	deleted, err := store.CountAndPruneOldest(context.Background(), "c1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, []string{"50"}, fake.requests[0].Query["offset"])
	assert.Equal(t, http.MethodDelete, fake.requests[1].Method)
	assert.True(t, strings.HasPrefix(fake.requests[1].Query["id"][0], "in.(m1,m2"))
}

func TestStore_RetriesTransientFailures(t *testing.T) {
	calls := 0
	store, _ := newTestStore(t, func(r recordedRequest) (int, string) {
		calls++
		if calls < 3 {
			return http.StatusServiceUnavailable, ``
		}
		return http.StatusOK, `[{"id":"acme","name":"Acme","email_capture_enabled":true}]`
	})

	company, err := store.GetCompanyByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, company.EmailCaptureEnabled)
	assert.Equal(t, 3, calls)
}

func TestStore_UnexpectedStatus(t *testing.T) {
	store, _ := newTestStore(t, func(r recordedRequest) (int, string) {
		return http.StatusForbidden, `{}`
	})

	_, err := store.ListBySequenceAsc(context.Background(), "c1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}
