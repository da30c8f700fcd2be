package kitchen

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration means routing cannot proceed with the current
	// station catalog. Not retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransientIO marks store or transport failures that may succeed
	// on retry.
	ErrTransientIO = errors.New("transient I/O error")
	// ErrConflict means the target no longer matches the caller's
	// assumption about its state.
	ErrConflict = errors.New("conflict")
	// ErrValidation marks malformed input, rejected before any I/O.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is a validation failure for an unknown reference.
	ErrNotFound = fmt.Errorf("%w: not found", ErrValidation)
)

// OpError ties a failure to the operation and the reference (entry,
// table, order or station ID) it concerns.
type OpError struct {
	Op   string
	Ref  string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Ref != "" {
		msg += " " + e.Ref
	}
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case e.Kind != nil:
		return msg + ": " + e.Kind.Error()
	default:
		return msg
	}
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError builds an OpError. When kind is nil it is inherited from err
// so wrapping a store error keeps its classification.
func NewError(op, ref string, kind, err error) error {
	if kind == nil {
		kind = KindOf(err)
	}
	return &OpError{Op: op, Ref: ref, Kind: kind, Err: err}
}

// Errorf is NewError with a formatted cause.
func Errorf(op, ref string, kind error, format string, args ...any) error {
	return &OpError{Op: op, Ref: ref, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the taxonomy sentinel err belongs to, or nil.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConfiguration):
		return ErrConfiguration
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrTransientIO):
		return ErrTransientIO
	default:
		return nil
	}
}

// KindName is the wire name of an error kind.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrConfiguration:
		return "configuration"
	case ErrConflict:
		return "conflict"
	case ErrValidation:
		return "validation"
	case ErrTransientIO:
		return "transient_io"
	default:
		return "internal"
	}
}

// KindByName reverses KindName.
func KindByName(name string) error {
	switch name {
	case "not_found":
		return ErrNotFound
	case "configuration":
		return ErrConfiguration
	case "conflict":
		return ErrConflict
	case "validation":
		return ErrValidation
	case "transient_io":
		return ErrTransientIO
	default:
		return nil
	}
}

// RefOf returns the reference carried by the outermost OpError.
func RefOf(err error) string {
	var op *OpError
	if errors.As(err, &op) {
		return op.Ref
	}
	return ""
}

// HTTPStatus maps an error to the status code handlers answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConfiguration:
		return http.StatusUnprocessableEntity
	case ErrConflict:
		return http.StatusConflict
	case ErrValidation:
		return http.StatusBadRequest
	case ErrTransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
