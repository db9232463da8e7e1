// File: internal/domain/company.go
package domain

import "time"

// Company holds the per-tenant widget configuration. It is managed elsewhere;
// the chat pipeline only reads it.
type Company struct {
    ID                  string    `json:"id" gorm:"primaryKey;size:64"`
    Name                string    `json:"name" gorm:"size:255"`
    SystemPrompt        string    `json:"system_prompt" gorm:"type:text"`
    WelcomeMessage      string    `json:"welcome_message" gorm:"type:text"`
    IndexName           string    `json:"index_name" gorm:"size:128"`         // retrieval namespace
    NotificationEmail   string    `json:"notification_email" gorm:"size:320"` // receives captured leads
    EmailCaptureEnabled bool      `json:"email_capture_enabled"`
    Model               string    `json:"model" gorm:"size:64"` // empty means the server default
    CreatedAt           time.Time `json:"created_at"`
    UpdatedAt           time.Time `json:"updated_at"`
}
