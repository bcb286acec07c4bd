// Package errs defines the error taxonomy returned across component
// boundaries. Callers branch on Kind instead of matching error strings.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindGateway
	KindConflict
	KindNoEligibleFunds
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindGateway:
		return "gateway"
	case KindConflict:
		return "conflict"
	case KindNoEligibleFunds:
		return "no_eligible_funds"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

type Error struct {
	Kind  Kind
	Field string // set for field-level validation failures
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Field builds a validation error tied to a single input field.
func Field(field, msg string) error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// KindOf reports the taxonomy kind of err, unwrapping as needed, or
// KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool      { return err != nil && KindOf(err) == KindValidation }
func IsGateway(err error) bool         { return err != nil && KindOf(err) == KindGateway }
func IsConflict(err error) bool        { return err != nil && KindOf(err) == KindConflict }
func IsNoEligibleFunds(err error) bool { return err != nil && KindOf(err) == KindNoEligibleFunds }
func IsNotFound(err error) bool        { return err != nil && KindOf(err) == KindNotFound }
