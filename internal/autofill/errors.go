// internal/autofill/errors.go
package autofill

import "errors"

// The messages of these errors are returned verbatim to the requester.
var (
	ErrNoLoginFormFound        = errors.New("Couldn't find anything that looks like a login form")
	ErrNoFocusedField          = errors.New("No focused inputs in history")
	ErrUnrecognizedRequestType = errors.New("Invalid message type")
)
