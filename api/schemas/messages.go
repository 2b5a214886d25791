// api/schemas/messages.go
package schemas

import (
	"bytes"
	"fmt"

	json "github.com/json-iterator/go"
)

// -- Fill Message Contract --

// RequestType tags the two request shapes a filler understands.
type RequestType string

const (
	// RequestFillUserPassword asks the filler to locate a login form and write
	// both credential values into it.
	RequestFillUserPassword RequestType = "fill_user_password"
	// RequestFillField asks the filler to write text into the input that most
	// recently received or lost focus.
	RequestFillField RequestType = "fill_field"
)

func (t RequestType) String() string { return string(t) }

// Request is the tagged union delivered by the messaging channel. Only the
// fields belonging to Type are meaningful.
type Request struct {
	Type     RequestType `json:"type"`
	User     string      `json:"user,omitempty"`
	Password string      `json:"password,omitempty"`
	Text     string      `json:"text,omitempty"`
}

// NewFillUserPassword builds a fill_user_password request.
func NewFillUserPassword(user, password string) Request {
	return Request{Type: RequestFillUserPassword, User: user, Password: password}
}

// NewFillField builds a fill_field request.
func NewFillField(text string) Request {
	return Request{Type: RequestFillField, Text: text}
}

// Response is the single reply to a Request. A nil Error means success and
// encodes as JSON null; a failure encodes as a bare JSON string.
type Response struct {
	Error *string
}

// OK is the success response.
func OK() Response { return Response{} }

// Failure wraps an error message into a response.
func Failure(msg string) Response { return Response{Error: &msg} }

// Failuref formats a failure response.
func Failuref(format string, args ...interface{}) Response {
	return Failure(fmt.Sprintf(format, args...))
}

// Success reports whether the response carries no error.
func (r Response) Success() bool { return r.Error == nil }

// Message returns the error message, or "" on success.
func (r Response) Message() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// MarshalJSON encodes success as null and failure as a string.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*r.Error)
}

// UnmarshalJSON accepts null or a string.
func (r *Response) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		r.Error = nil
		return nil
	}
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("response must be null or a string: %w", err)
	}
	r.Error = &msg
	return nil
}
