// File: internal/dtos/chat.go
package dtos

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"

    "github.com/iyunix/go-chatwidget/internal/domain"
)

// MaxContentBytes caps a single visitor message.
const MaxContentBytes = 32 * 1024

var validate *validator.Validate

func init() {
    validate = validator.New()
    // Report fields by their JSON names.
    validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
        name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    _ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
        return len(fl.Field().String()) <= MaxContentBytes
    })
}

// CreateChatRequest is the body of POST /api/chats.
type CreateChatRequest struct {
    CompanyID string `json:"companyId" validate:"required,max=64"`
    UserID    string `json:"userId" validate:"omitempty,max=64"`
}

func (r *CreateChatRequest) Validate() error {
    return describe(validate.Struct(r))
}

// CreateChatResponse carries everything the widget needs to start talking.
type CreateChatResponse struct {
    Chat        ChatDTO      `json:"chat"`
    AccessToken string       `json:"accessToken"`
    Messages    []MessageDTO `json:"messages"`
}

// StreamRequest is one visitor message, sent as a JSON body or, for SSE
// GET, as query parameters.
type StreamRequest struct {
    Content      string `json:"content" validate:"required,maxbytes"`
    Timezone     string `json:"timezone,omitempty" validate:"omitempty,timezone"`
    EmailCapture bool   `json:"emailCapture,omitempty"`
}

func (r *StreamRequest) Validate() error {
    if strings.TrimSpace(r.Content) == "" {
        return errors.New("content is required")
    }
    return describe(validate.Struct(r))
}

// ChatDTO is the public view of a chat; the captured email is not exposed.
type ChatDTO struct {
    ID        string `json:"id"`
    UserID    string `json:"userId"`
    CompanyID string `json:"companyId"`
    CreatedAt string `json:"createdAt"`
}

type MessageDTO struct {
    ID             string `json:"id"`
    Role           string `json:"role"`
    Content        string `json:"content"`
    SequenceNumber int64  `json:"sequenceNumber"`
    CreatedAt      string `json:"createdAt"`
}

func ToChatDTO(c *domain.Chat) ChatDTO {
    return ChatDTO{
        ID:        c.ID,
        UserID:    c.UserID,
        CompanyID: c.CompanyID,
        CreatedAt: c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
    }
}

func ToMessageDTOs(messages []domain.Message) []MessageDTO {
    out := make([]MessageDTO, 0, len(messages))
    for _, m := range messages {
        out = append(out, MessageDTO{
            ID:             m.ID,
            Role:           string(m.Role),
            Content:        m.Content,
            SequenceNumber: m.SequenceNumber,
            CreatedAt:      m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
        })
    }
    return out
}

// describe turns validator output into a message fit for the client.
func describe(err error) error {
    if err == nil {
        return nil
    }
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) || len(verrs) == 0 {
        return err
    }
    fe := verrs[0]
    field := fe.Field()
    switch fe.Tag() {
    case "required":
        return fmt.Errorf("%s is required", field)
    case "maxbytes":
        return fmt.Errorf("%s exceeds %d bytes", field, MaxContentBytes)
    case "max":
        return fmt.Errorf("%s is too long", field)
    case "timezone":
        return fmt.Errorf("%s is not a valid IANA time zone", field)
    default:
        return fmt.Errorf("%s is invalid", field)
    }
}
