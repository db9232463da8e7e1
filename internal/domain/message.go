// File: internal/domain/message.go
package domain

import (
    "errors"
    "time"
)

// Role is the author of a message.
type Role string

const (
    RoleUser      Role = "user"
    RoleAssistant Role = "assistant"
    RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
    switch r {
    case RoleUser, RoleAssistant, RoleSystem:
        return true
    }
    return false
}

// Message represents a single message within a chat. SequenceNumber is the
// total order of the transcript and is unique per chat.
type Message struct {
    ID             string    `json:"id" gorm:"primaryKey;size:36"`
    ChatID         string    `json:"chat_id" gorm:"size:36;not null;uniqueIndex:ux_chat_sequence,priority:1"`
    UserID         string    `json:"user_id" gorm:"size:64;not null"`
    Role           Role      `json:"role" gorm:"type:varchar(16);not null"`
    Content        string    `json:"content" gorm:"type:text;not null"`
    SequenceNumber int64     `json:"sequence_number" gorm:"not null;uniqueIndex:ux_chat_sequence,priority:2"`
    CreatedAt      time.Time `json:"created_at"`
    UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the fields every persisted message must carry.
func (m *Message) Validate() error {
    if m.ChatID == "" {
        return errors.New("chat ID is required")
    }
    if m.UserID == "" {
        return errors.New("user ID is required")
    }
    if !m.Role.Valid() {
        return errors.New("invalid message role")
    }
    if m.SequenceNumber <= 0 {
        return errors.New("sequence number must be positive")
    }
    return nil
}
