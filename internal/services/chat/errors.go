// File: internal/services/chat/errors.go
package chat

import (
    "errors"
    "fmt"

    "github.com/iyunix/go-chatwidget/internal/protocol"
)

type ErrorType string

const (
    ErrTypeValidation   ErrorType = "VALIDATION"
    ErrTypeUnauthorized ErrorType = "UNAUTHORIZED"
    ErrTypeNotFound     ErrorType = "NOT_FOUND"
    ErrTypeStore        ErrorType = "STORE"
    ErrTypeRetrieval    ErrorType = "RETRIEVAL"
    ErrTypeModel        ErrorType = "MODEL"
    ErrTypeSideChannel  ErrorType = "SIDE_CHANNEL"
)

type ChatError struct {
    Type      ErrorType
    Operation string
    Message   string
    Code      string // wire code sent to the client
    ChatID    string
    Cause     error
}

func (e *ChatError) Error() string {
    if e.Cause != nil {
        return fmt.Sprintf("Chat %s error in %s: %s (caused by: %v)",
            e.Type, e.Operation, e.Message, e.Cause)
    }
    return fmt.Sprintf("Chat %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *ChatError) Unwrap() error {
    return e.Cause
}

func NewValidationError(operation, msg string) *ChatError {
    return &ChatError{Type: ErrTypeValidation, Operation: operation, Message: msg, Code: protocol.CodeValidation}
}

func NewUnauthorizedError(chatID string) *ChatError {
    return &ChatError{
        Type:      ErrTypeUnauthorized,
        Operation: "authorization",
        Message:   "chat not found or unauthorized",
        Code:      protocol.CodeUnauthorized,
        ChatID:    chatID,
    }
}

func NewChatNotFoundError(chatID string, cause error) *ChatError {
    return &ChatError{Type: ErrTypeNotFound, Operation: "load_chat", Message: "chat not found", Code: protocol.CodeChatNotFound, ChatID: chatID, Cause: cause}
}

func NewCompanyNotFoundError(cause error) *ChatError {
    return &ChatError{Type: ErrTypeNotFound, Operation: "load_company", Message: "company not found", Code: protocol.CodeCompanyNotFound, Cause: cause}
}

func NewStoreError(operation string, cause error) *ChatError {
    return &ChatError{Type: ErrTypeStore, Operation: operation, Message: "storage unavailable", Code: protocol.CodeStore, Cause: cause}
}

func NewModelError(operation string, cause error) *ChatError {
    return &ChatError{Type: ErrTypeModel, Operation: operation, Message: "the assistant is unavailable right now", Code: protocol.CodeModel, Cause: cause}
}

// CodeOf maps any error onto a wire code.
func CodeOf(err error) string {
    var ce *ChatError
    if errors.As(err, &ce) && ce.Code != "" {
        return ce.Code
    }
    return protocol.CodeInternal
}

// PublicMessage is the error text safe to show a visitor.
func PublicMessage(err error) string {
    var ce *ChatError
    if errors.As(err, &ce) {
        return ce.Message
    }
    return "internal error"
}
