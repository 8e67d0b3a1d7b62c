package response

import (
	"errors"
)

type Error struct {
	Code  int
	Err   error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Err.Error() + ": " + e.Cause.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on code and base message so a wrapped error still equals its sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Err: errors.New(err)}
}

// Wrap attaches cause to a sentinel created by NewError. Non-response sentinels
// are returned as a plain *Error with status 500.
func Wrap(sentinel error, cause error) error {
	var s *Error
	if !errors.As(sentinel, &s) {
		return &Error{Code: 500, Err: sentinel, Cause: cause}
	}
	return &Error{Code: s.Code, Err: s.Err, Cause: cause}
}
