package apierr

import "net/http"

// Error is an HTTP-facing failure. Message is what the client sees; Err is
// the underlying cause and only reaches the logs.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
	Details any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// New exposes err's text to the client.
func New(status int, code string, err error) *Error {
	e := &Error{Status: status, Code: code, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// Opaque keeps err out of the response and shows message instead.
func Opaque(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}
