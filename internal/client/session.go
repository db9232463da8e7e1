package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/iyunix/go-chatwidget/internal/dtos"
	"github.com/iyunix/go-chatwidget/internal/protocol"
)

// ServerError is an error event returned by the server outside a stream.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// CreateChat opens a new conversation for the configured company and
// stores its credentials. It goes through the resilient fetcher, so
// transient failures are retried.
func (c *Client) CreateChat(ctx context.Context) (Credentials, []dtos.MessageDTO, error) {
	body, err := json.Marshal(dtos.CreateChatRequest{CompanyID: c.opts.CompanyID, UserID: c.opts.UserID})
	if err != nil {
		return Credentials{}, nil, err
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.fetcher.Request(ctx, http.MethodPost, c.opts.BaseURL+"/api/chats", body, header)
	if err != nil {
		return Credentials{}, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credentials{}, nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		serr := &ServerError{StatusCode: resp.StatusCode, Code: protocol.CodeInternal}
		if ev, err := protocol.Parse(bytes.TrimSpace(data)); err == nil {
			serr.Code, serr.Message = ev.Code, ev.Error
		}
		return Credentials{}, nil, serr
	}

	var created dtos.CreateChatResponse
	if err := json.Unmarshal(data, &created); err != nil {
		return Credentials{}, nil, fmt.Errorf("decoding chat: %w", err)
	}
	creds := Credentials{ChatID: created.Chat.ID, Token: created.AccessToken, UserID: created.Chat.UserID}
	if !creds.valid() {
		return Credentials{}, nil, fmt.Errorf("server returned an incomplete session")
	}
	if err := c.creds.Save(creds); err != nil {
		c.logger.Warn("could not persist credentials", "error", err)
	}
	c.logger.Info("chat created", "chat_id", creds.ChatID)
	return creds, created.Messages, nil
}
