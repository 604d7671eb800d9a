package matcher

import (
	"errors"
	"fmt"
)

var (
	ErrTransport      = errors.New("matcher transport error")
	ErrResponseFormat = errors.New("matcher response format error")
)

// TransportError is returned when the docker could not be reached, did not
// answer in time or answered with a status other than 200.
type TransportError struct {
	Endpoint   string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("matcher %s: %s answered with status %d", e.Endpoint, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("matcher %s: post %s: %v", e.Endpoint, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ResponseFormatError is returned when the docker answered but the body is
// not the expected {"message": [...]} shape.
type ResponseFormatError struct {
	Endpoint string
	Err      error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("matcher %s: bad response: %v", e.Endpoint, e.Err)
}

func (e *ResponseFormatError) Unwrap() error {
	return e.Err
}

func (e *ResponseFormatError) Is(target error) bool {
	return target == ErrResponseFormat
}

// PartialMatchWarning is not a failure, it is attached to a Response when
// the docker returned fewer rows than it was sent.
type PartialMatchWarning struct {
	Endpoint  string
	Requested int
	Returned  int
}

func (w *PartialMatchWarning) Error() string {
	return fmt.Sprintf("matcher %s: %d of %d rows matched", w.Endpoint, w.Returned, w.Requested)
}
