package retrieval

import "fmt"

type RetrievalError struct {
    Type    string
    Message string
    Err     error
}

func (e *RetrievalError) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("retrieval %s error: %s: %v", e.Type, e.Message, e.Err)
    }
    return fmt.Sprintf("retrieval %s error: %s", e.Type, e.Message)
}

func (e *RetrievalError) Unwrap() error {
    return e.Err
}

func NewConfigError(message string) *RetrievalError {
    return &RetrievalError{Type: "config", Message: message}
}

func NewEmbeddingError(message string, err error) *RetrievalError {
    return &RetrievalError{Type: "embedding", Message: message, Err: err}
}

func NewOperationError(message string, err error) *RetrievalError {
    return &RetrievalError{Type: "operation", Message: message, Err: err}
}

func NewTimeoutError(message string, err error) *RetrievalError {
    return &RetrievalError{Type: "timeout", Message: message, Err: err}
}

func NewRetryError(message string, err error) *RetrievalError {
    return &RetrievalError{Type: "retry", Message: message, Err: err}
}
