package errcodes

import (
	"errors"
	"fmt"
)

const (
	CodeNotFound       = "not_found"
	CodeAlreadyClaimed = "already_claimed"
	CodeInvalidTarget  = "invalid_target"
)

type Error struct {
	Message string
	Code    string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Message == err.Message && te.Code == err.Code
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	e := &Error{}
	return errors.As(err, &e) && e.Code == code
}

// NotFound returns an error indicating the given resource does not exist.
func NotFound(resource string) error {
	return &Error{
		resource + " not found.",
		CodeNotFound,
	}
}

// AlreadyClaimed returns an error indicating a work item claim was lost to
// another worker.
func AlreadyClaimed(id int) error {
	return &Error{
		fmt.Sprintf("Work item %d is already claimed.", id),
		CodeAlreadyClaimed,
	}
}

// InvalidTarget returns an error indicating a malformed target descriptor.
func InvalidTarget(detail string) error {
	return &Error{
		"Invalid target: " + detail,
		CodeInvalidTarget,
	}
}
