package message

import (
    "context"

    "github.com/iyunix/go-chatwidget/internal/domain"
)

type MessageRepository interface {
    // Create inserts a message. A (chat_id, sequence_number) collision is
    // reported as ErrSequenceConflict.
    Create(ctx context.Context, message *domain.Message) error
    FindByChatIDAsc(ctx context.Context, chatID string) ([]domain.Message, error)
    LatestSequenceNumber(ctx context.Context, chatID string) (int64, error)
    // PruneOldest deletes the oldest messages until at most keep remain.
    PruneOldest(ctx context.Context, chatID string, keep int) (int64, error)
}
