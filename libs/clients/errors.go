package clients

import (
	"errors"
	"fmt"

	errorutils "github.com/brave-intl/acquiring-go/libs/errors"
)

var (
	// ErrUnableToDecode unable to decode body
	ErrUnableToDecode = "unable to decode response"
	// ErrProtocolError the error was within the data that went into the endpoint
	ErrProtocolError = "protocol error"
	// ErrUnableToEscapeURL the url could not be escaped
	ErrUnableToEscapeURL = "unable to escape url"
	// ErrInvalidHost the host was invalid
	ErrInvalidHost = "invalid host"
	// ErrMalformedRequest the request was malformed
	ErrMalformedRequest = "malformed request"
	// ErrUnableToEncodeBody body could not be encoded
	ErrUnableToEncodeBody = "unable to encode body"
)

// HTTPState captures the state of the response to be read by lower fns in the stack
type HTTPState struct {
	Status int
	Path   string
	Body   interface{}
}

// NewHTTPError creates a new errors.ErrorBundle with an HTTPState wrapping the status, path and v.
func NewHTTPError(err error, path, message string, status int, v interface{}) error {
	return errorutils.New(err, message, HTTPState{
		Status: status,
		Path:   path,
		Body:   v,
	})
}

// UnwrapHTTPState unwraps the HTTPState from an errors.ErrorBundle
func UnwrapHTTPState(err error) (*HTTPState, error) {
	var errorBundle *errorutils.ErrorBundle
	if errors.As(err, &errorBundle) {
		if httpState, ok := errorBundle.Data().(HTTPState); ok {
			return &httpState, nil
		}
	}
	return nil, fmt.Errorf("error unwrapping http state for error %w", err)
}
