package modelstream

import "fmt"

// StreamError reports a failure of the upstream stream, either as an HTTP
// status before streaming began or as a failure event mid-stream.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model stream: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("model stream: %s: %s", e.Code, e.Message)
	}
	return "model stream: " + e.Message
}
