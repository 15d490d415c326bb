package gateway

import (
	"errors"
	"fmt"
)

var ErrEmptyResponse = errors.New("response body is empty")
var ErrNotImplemented = errors.New("not implemented")

// NetworkError wraps a failure to reach the server at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer from the server.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
}

// DuplicateNameError is the server refusing a name already taken in the game.
type DuplicateNameError struct {
	Name   string
	GameID string
}

func (e *DuplicateNameError) Error() string {
	if e.GameID == "" {
		return fmt.Sprintf("a player named %q already exists", e.Name)
	}
	return fmt.Sprintf("a player named %q already exists in game %s", e.Name, e.GameID)
}
