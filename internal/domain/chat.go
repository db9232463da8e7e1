// File: internal/domain/chat.go
package domain

import "time"

// Chat represents a single widget conversation.
type Chat struct {
    ID        string    `json:"id" gorm:"primaryKey;size:36"`
    UserID    string    `json:"user_id" gorm:"size:64;not null;index"`
    CompanyID string    `json:"company_id" gorm:"size:64;not null;index"`
    UserEmail *string   `json:"user_email,omitempty" gorm:"size:320"` // set once by email capture, never cleared
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// HasEmail reports whether an email address has already been captured.
func (c *Chat) HasEmail() bool {
    return c.UserEmail != nil && *c.UserEmail != ""
}
