package message

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/iyunix/go-chatwidget/internal/domain"
)

var ErrSequenceConflict = errors.New("sequence number already taken")

type gormMessageRepository struct {
    db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
    return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, message *domain.Message) error {
    if message == nil {
        return errors.New("message cannot be nil")
    }
    if err := message.Validate(); err != nil {
        return fmt.Errorf("validation failed: %w", err)
    }
    if message.ID == "" {
        message.ID = uuid.NewString()
    }

    err := r.db.WithContext(ctx).Create(message).Error
    if isUniqueViolation(err) {
        return ErrSequenceConflict
    }
    if err != nil {
        return fmt.Errorf("creating message: %w", err)
    }
    return nil
}

// FindByChatIDAsc returns the transcript ordered by sequence number.
func (r *gormMessageRepository) FindByChatIDAsc(ctx context.Context, chatID string) ([]domain.Message, error) {
    var messages []domain.Message
    err := r.db.WithContext(ctx).
        Where("chat_id = ?", chatID).
        Order("sequence_number ASC").
        Find(&messages).Error
    if err != nil {
        return nil, fmt.Errorf("listing messages: %w", err)
    }
    return messages, nil
}

// LatestSequenceNumber returns 0 for an empty chat.
func (r *gormMessageRepository) LatestSequenceNumber(ctx context.Context, chatID string) (int64, error) {
    var latest int64
    err := r.db.WithContext(ctx).
        Model(&domain.Message{}).
        Where("chat_id = ?", chatID).
        Select("COALESCE(MAX(sequence_number), 0)").
        Scan(&latest).Error
    if err != nil {
        return 0, fmt.Errorf("reading latest sequence: %w", err)
    }
    return latest, nil
}

func (r *gormMessageRepository) PruneOldest(ctx context.Context, chatID string, keep int) (int64, error) {
    if keep <= 0 {
        return 0, errors.New("keep must be positive")
    }

    var deleted int64
    err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        var count int64
        if err := tx.Model(&domain.Message{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
            return err
        }
        excess := int(count) - keep
        if excess <= 0 {
            return nil
        }

        var ids []string
        if err := tx.Model(&domain.Message{}).
            Where("chat_id = ?", chatID).
            Order("sequence_number ASC").
            Limit(excess).
            Pluck("id", &ids).Error; err != nil {
            return err
        }

        result := tx.Where("chat_id = ? AND id IN ?", chatID, ids).Delete(&domain.Message{})
        if result.Error != nil {
            return result.Error
        }
        deleted = result.RowsAffected
        return nil
    })
    if err != nil {
        return 0, fmt.Errorf("pruning messages: %w", err)
    }
    return deleted, nil
}

// isUniqueViolation matches the translated gorm error as well as the raw
// driver messages, since not every dialector translates.
func isUniqueViolation(err error) bool {
    if err == nil {
        return false
    }
    if errors.Is(err, gorm.ErrDuplicatedKey) {
        return true
    }
    msg := strings.ToLower(err.Error())
    return strings.Contains(msg, "unique constraint") ||
        strings.Contains(msg, "duplicate entry") ||
        strings.Contains(msg, "duplicate key")
}
