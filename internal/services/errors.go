package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/plansync-backend/internal/data/repos"
	"github.com/yungbote/plansync-backend/internal/domain/plans"
)

var (
	ErrInvalidShape        = errors.New("invalid shape")
	ErrNotFound            = errors.New("plan not found")
	ErrDuplicateContent    = errors.New("plan already exists with identical content")
	ErrPreconditionMissing = errors.New("If-Match header is required")
	ErrPreconditionFailed  = errors.New("plan has been modified")
	ErrStoreUnavailable    = errors.New("primary store unavailable")
	ErrQueueUnavailable    = errors.New("event queue unavailable")
	ErrIndexUnavailable    = errors.New("search index unavailable")
)

// ValidationError is an InvalidShape failure with the offending fields.
type ValidationError struct {
	Fields []plans.FieldError
	msg    string
}

func (e *ValidationError) Error() string { return e.msg }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidShape }

func invalidShape(err error) error {
	var se *plans.ShapeError
	if errors.As(err, &se) {
		return &ValidationError{Fields: se.Fields, msg: se.Error()}
	}
	return &ValidationError{msg: err.Error()}
}

func invalidField(field, rule, param string) error {
	fe := plans.FieldError{Field: field, Rule: rule, Param: param}
	return &ValidationError{Fields: []plans.FieldError{fe}, msg: "invalid shape: " + field + " " + rule}
}

// storeErr classifies a primary store failure. Errors already carrying a
// service sentinel pass through unchanged.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isServiceErr(err):
		return err
	case errors.Is(err, repos.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrPreconditionFailed)
	case errors.Is(err, repos.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isServiceErr(err error) bool {
	for _, s := range []error{
		ErrInvalidShape, ErrNotFound, ErrDuplicateContent,
		ErrPreconditionMissing, ErrPreconditionFailed,
		ErrStoreUnavailable, ErrQueueUnavailable, ErrIndexUnavailable,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
