package resilient

import (
    "errors"
    "fmt"
)

// ErrRetryableStatus marks a FetchError caused by a transient HTTP status.
var ErrRetryableStatus = errors.New("retryable status")

// FetchError is the terminal error of a resilient request.
type FetchError struct {
    URL        string
    Attempts   int
    StatusCode int // zero when the transport itself failed
    Cause      error
}

func (e *FetchError) Error() string {
    if e.StatusCode != 0 {
        return fmt.Sprintf("request to %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.StatusCode)
    }
    return fmt.Sprintf("request to %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error {
    return e.Cause
}
