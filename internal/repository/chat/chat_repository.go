package chat

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/iyunix/go-chatwidget/internal/domain"
)

var ErrChatNotFound = errors.New("chat not found")

type gormChatRepository struct {
    db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
    return &gormChatRepository{db: db}
}

// Create inserts a chat, assigning a UUID when the caller did not.
func (r *gormChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
    if err := r.validateChatInput(chat); err != nil {
        return fmt.Errorf("validation failed: %w", err)
    }
    if chat.ID == "" {
        chat.ID = uuid.NewString()
    }

    if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
        return fmt.Errorf("creating chat: %w", err)
    }
    return nil
}

func (r *gormChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
    if strings.TrimSpace(chatID) == "" {
        return nil, ErrChatNotFound
    }

    var chat domain.Chat
    err := r.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, ErrChatNotFound
    }
    if err != nil {
        return nil, fmt.Errorf("finding chat: %w", err)
    }
    return &chat, nil
}

// SetEmailIfUnset stores email on the chat only if none was captured before.
// It reports whether the row changed.
func (r *gormChatRepository) SetEmailIfUnset(ctx context.Context, chatID, email string) (bool, error) {
    email = strings.TrimSpace(email)
    if email == "" {
        return false, errors.New("email is required")
    }

    result := r.db.WithContext(ctx).
        Model(&domain.Chat{}).
        Where("id = ? AND (user_email IS NULL OR user_email = '')", chatID).
        Updates(map[string]interface{}{
            "user_email": email,
            "updated_at": time.Now(),
        })
    if result.Error != nil {
        return false, fmt.Errorf("updating chat email: %w", result.Error)
    }
    if result.RowsAffected == 1 {
        return true, nil
    }

    // Distinguish "already set" from "no such chat".
    if _, err := r.FindByID(ctx, chatID); err != nil {
        return false, err
    }
    return false, nil
}

func (r *gormChatRepository) TouchUpdatedAt(ctx context.Context, chatID string) error {
    result := r.db.WithContext(ctx).
        Model(&domain.Chat{}).
        Where("id = ?", chatID).
        Update("updated_at", time.Now())
    if result.Error != nil {
        return fmt.Errorf("touching chat: %w", result.Error)
    }
    if result.RowsAffected == 0 {
        return ErrChatNotFound
    }
    return nil
}

func (r *gormChatRepository) validateChatInput(chat *domain.Chat) error {
    if chat == nil {
        return errors.New("chat cannot be nil")
    }
    if strings.TrimSpace(chat.UserID) == "" {
        return errors.New("user ID is required")
    }
    if strings.TrimSpace(chat.CompanyID) == "" {
        return errors.New("company ID is required")
    }
    return nil
}
