package chat

import (
    "context"

    "github.com/iyunix/go-chatwidget/internal/domain"
)

// ChatRepository handles chat data operations.
type ChatRepository interface {
    Create(ctx context.Context, chat *domain.Chat) error
    FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
    SetEmailIfUnset(ctx context.Context, chatID, email string) (bool, error)
    TouchUpdatedAt(ctx context.Context, chatID string) error
}
