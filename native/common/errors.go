package common

import "errors"

// Class groups failures by how a caller should react to them.
type Class uint8

const (
	ClassUnknown Class = iota
	// ClassPrecondition failures report state that makes the call invalid,
	// such as a safe vault or an already neutral strategy.
	ClassPrecondition
	// ClassExternalData failures come from oracles or venues. The operation
	// aborted without side effects and may be resubmitted with fresh data.
	ClassExternalData
	// ClassOrderValidation failures reject a signed order or its backing funds.
	ClassOrderValidation
	// ClassArithmetic failures are overflow or underflow in fixed-point math.
	ClassArithmetic
	ClassAuthorization
)

func (c Class) String() string {
	switch c {
	case ClassPrecondition:
		return "precondition"
	case ClassExternalData:
		return "external_data"
	case ClassOrderValidation:
		return "order_validation"
	case ClassArithmetic:
		return "arithmetic"
	case ClassAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// Error is a sentinel carrying its Class. Compare with errors.Is.
type Error struct {
	class Class
	msg   string
}

// NewError creates a classified sentinel error.
func NewError(class Class, msg string) *Error {
	return &Error{class: class, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Class() Class { return e.class }

// Classify walks the wrap chain and returns the class of the first classified
// error found.
func Classify(err error) Class {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.class
	}
	return ClassUnknown
}

// Retryable reports whether resubmitting the same call with refreshed inputs
// can succeed. Only external-data failures qualify.
func Retryable(err error) bool {
	return Classify(err) == ClassExternalData
}
