// Package api provides the HTTP client and endpoint wrappers for the
// SpaceTraders v2 REST API.
package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound matches an APIError with HTTP status 404.
var ErrNotFound = errors.New("not found")

// ErrNotListable is returned for collections the API cannot page through.
var ErrNotListable = errors.New("collection has no listing endpoint")

// APIError is returned when the SpaceTraders API returns an error response.
type APIError struct {
	StatusCode int
	// Code is the SpaceTraders error code from the response body, if any.
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("API error (HTTP %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// errorBody is the error envelope of a SpaceTraders response.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Transport is the interface for making API requests. A nil response map
// with a nil error means the endpoint returned no content.
type Transport interface {
	Request(ctx context.Context, method, endpoint string, params map[string]string, body interface{}) (map[string]interface{}, error)
}

// RequestLogEntry records a request made to a transport.
type RequestLogEntry struct {
	Method   string
	Endpoint string
	Params   map[string]string
	Body     interface{}
}
