// ABOUTME: Error types returned by the knowledge API client
// ABOUTME: APIError covers exhausted retries and terminal statuses, MalformedResponseError bad JSON bodies

package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrAPI matches every *APIError.
	ErrAPI = errors.New("knowledge api error")
	// ErrMalformedResponse matches every *MalformedResponseError.
	ErrMalformedResponse = errors.New("malformed api response")
)

// APIError is returned when a request failed on every attempt.
// Status is 0 when the last attempt produced no HTTP response.
type APIError struct {
	Status   int
	Message  string
	Attempts int
	Err      error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("knowledge API request failed after %d attempt(s): %s", e.Attempts, e.Message)
	}
	return fmt.Sprintf("knowledge API returned %d after %d attempt(s): %s", e.Status, e.Attempts, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when a body declared as JSON does not parse.
type MalformedResponseError struct {
	ContentType string
	Raw         string
	Err         error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.ContentType, e.Err)
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
