// Package rest implements repository.Store against a PostgREST endpoint
// (for example a hosted Supabase project).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iyunix/go-chatwidget/internal/domain"
	"github.com/iyunix/go-chatwidget/internal/repository"
	"github.com/iyunix/go-chatwidget/internal/services/resilient"
)

// Fetcher is the subset of resilient.Fetcher the store needs.
type Fetcher interface {
	Request(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error)
}

// StatusError is returned for any unexpected HTTP status.
type StatusError struct {
	Method     string
	Table      string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest store: %s %s returned %d", e.Method, e.Table, e.StatusCode)
}

type Store struct {
	baseURL string
	apiKey  string
	fetch   Fetcher
	now     func() time.Time
}

// NewStore builds a Store. baseURL is the PostgREST root, e.g.
// https://xyz.supabase.co/rest/v1.
func NewStore(baseURL, apiKey string, fetch Fetcher) (*Store, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("rest store: base URL is required")
	}
	if fetch == nil {
		return nil, fmt.Errorf("rest store: fetcher is required")
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		fetch:   fetch,
		now:     time.Now,
	}, nil
}

func (s *Store) GetChatByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	var rows []domain.Chat
	q := url.Values{"id": {"eq." + chatID}, "select": {"*"}}
	if err := s.get(ctx, "chats", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, repository.ErrChatNotFound
	}
	return &rows[0], nil
}

func (s *Store) GetCompanyByID(ctx context.Context, companyID string) (*domain.Company, error) {
	var rows []domain.Company
	q := url.Values{"id": {"eq." + companyID}, "select": {"*"}}
	if err := s.get(ctx, "companies", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, repository.ErrCompanyNotFound
	}
	return &rows[0], nil
}

func (s *Store) ListBySequenceAsc(ctx context.Context, chatID string) ([]domain.Message, error) {
	var rows []domain.Message
	q := url.Values{
		"chat_id": {"eq." + chatID},
		"select":  {"*"},
		"order":   {"sequence_number.asc"},
	}
	if err := s.get(ctx, "messages", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) LatestSequenceNumber(ctx context.Context, chatID string) (int64, error) {
	var rows []struct {
		SequenceNumber int64 `json:"sequence_number"`
	}
	q := url.Values{
		"chat_id": {"eq." + chatID},
		"select":  {"sequence_number"},
		"order":   {"sequence_number.desc"},
		"limit":   {"1"},
	}
	if err := s.get(ctx, "messages", q, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].SequenceNumber, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := s.now().UTC()
	msg.CreatedAt, msg.UpdatedAt = now, now

	status, err := s.write(ctx, http.MethodPost, "messages", nil, msg, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		// A retried POST whose first attempt committed conflicts with
		// itself. Only a row under another id means the slot was taken.
		committed, err := s.findMessage(ctx, msg.ID)
		if err != nil {
			return err
		}
		if committed == nil {
			return repository.ErrSequenceConflict
		}
		*msg = *committed
		return nil
	default:
		return &StatusError{Method: http.MethodPost, Table: "messages", StatusCode: status}
	}
}

func (s *Store) findMessage(ctx context.Context, id string) (*domain.Message, error) {
	var rows []domain.Message
	q := url.Values{"id": {"eq." + id}, "select": {"*"}}
	if err := s.get(ctx, "messages", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) InsertChat(ctx context.Context, c *domain.Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	status, err := s.write(ctx, http.MethodPost, "chats", nil, c, nil)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		// Same id already stored: an earlier attempt committed.
		if _, err := s.GetChatByID(ctx, c.ID); err == nil {
			return nil
		}
	}
	if status >= 300 {
		return &StatusError{Method: http.MethodPost, Table: "chats", StatusCode: status}
	}
	return nil
}

func (s *Store) UpdateEmail(ctx context.Context, chatID, email string) (bool, error) {
	q := url.Values{"id": {"eq." + chatID}, "user_email": {"is.null"}}
	patch := map[string]interface{}{
		"user_email": email,
		"updated_at": s.now().UTC(),
	}

	var rows []domain.Chat
	status, err := s.write(ctx, http.MethodPatch, "chats", q, patch, &rows)
	if err != nil {
		return false, err
	}
	if status >= 300 {
		return false, &StatusError{Method: http.MethodPatch, Table: "chats", StatusCode: status}
	}
	if len(rows) > 0 {
		return true, nil
	}
	if _, err := s.GetChatByID(ctx, chatID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CountAndPruneOldest(ctx context.Context, chatID string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("rest store: keep must be positive")
	}

	var rows []struct {
		ID string `json:"id"`
	}
	q := url.Values{
		"chat_id": {"eq." + chatID},
		"select":  {"id"},
		"order":   {"sequence_number.desc"},
		"offset":  {strconv.Itoa(keep)},
	}
	if err := s.get(ctx, "messages", q, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	del := url.Values{
		"chat_id": {"eq." + chatID},
		"id":      {"in.(" + strings.Join(ids, ",") + ")"},
	}
	status, err := s.write(ctx, http.MethodDelete, "messages", del, nil, nil)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, &StatusError{Method: http.MethodDelete, Table: "messages", StatusCode: status}
	}
	return int64(len(ids)), nil
}

func (s *Store) get(ctx context.Context, table string, q url.Values, out interface{}) error {
	resp, err := s.fetch.Request(ctx, http.MethodGet, s.endpoint(table, q), nil, s.headers(""))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: http.MethodGet, Table: table, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest store: decoding %s: %w", table, err)
	}
	return nil
}

// write sends body as JSON and decodes the returned representation into out
// when out is non-nil.
func (s *Store) write(ctx context.Context, method, table string, q url.Values, body, out interface{}) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, fmt.Errorf("rest store: encoding %s: %w", table, err)
		}
	}

	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}
	resp, err := s.fetch.Request(ctx, method, s.endpoint(table, q), payload, s.headers(prefer))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("rest store: decoding %s: %w", table, err)
			}
		}
		return resp.StatusCode, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Store) endpoint(table string, q url.Values) string {
	u := s.baseURL + "/" + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *Store) headers(prefer string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		h.Set("apikey", s.apiKey)
		h.Set("Authorization", "Bearer "+s.apiKey)
	}
	if prefer != "" {
		h.Set("Prefer", prefer)
	}
	return h
}

var (
	_ repository.Store = (*Store)(nil)
	_ Fetcher          = (*resilient.Fetcher)(nil)
)
