// File: internal/repository/interface.go
package repository

import (
	"context"

	"github.com/iyunix/go-chatwidget/internal/domain"
	"github.com/iyunix/go-chatwidget/internal/repository/chat"
	"github.com/iyunix/go-chatwidget/internal/repository/company"
	"github.com/iyunix/go-chatwidget/internal/repository/message"
)

// Errors shared by every Store implementation.
var (
	ErrChatNotFound     = chat.ErrChatNotFound
	ErrCompanyNotFound  = company.ErrCompanyNotFound
	ErrSequenceConflict = message.ErrSequenceConflict
)

// Store is the durable state the chat pipeline depends on.
type Store interface {
	GetChatByID(ctx context.Context, chatID string) (*domain.Chat, error)
	GetCompanyByID(ctx context.Context, companyID string) (*domain.Company, error)
	ListBySequenceAsc(ctx context.Context, chatID string) ([]domain.Message, error)
	LatestSequenceNumber(ctx context.Context, chatID string) (int64, error)
	InsertMessage(ctx context.Context, msg *domain.Message) error
	InsertChat(ctx context.Context, c *domain.Chat) error
	// UpdateEmail sets the chat's email only when it has none; the bool
	// reports whether anything was written.
	UpdateEmail(ctx context.Context, chatID, email string) (bool, error)
	// CountAndPruneOldest trims the chat to its keep most recent messages
	// and returns how many rows were removed.
	CountAndPruneOldest(ctx context.Context, chatID string, keep int) (int64, error)
}
