package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an operation on a device did not succeed.
type ErrorKind string

const (
	KindConnection       ErrorKind = "connection_failure"
	KindElementNotFound  ErrorKind = "element_not_found"
	KindLoginFailed      ErrorKind = "login_failed"
	KindConfigResolution ErrorKind = "config_resolution_failure"
	KindCredentialParse  ErrorKind = "credential_parse_failure"
	KindInventoryRow     ErrorKind = "inventory_row_invalid"
	KindConfigInvalid    ErrorKind = "config_invalid"
	KindDriver           ErrorKind = "driver_failure"
)

// Fatal reports whether errors of this kind end an operation as fatal rather than skipped.
func (k ErrorKind) Fatal() bool {
	return k == KindDriver || k == ""
}

// OpError is the structured error returned by the interpreter, the device session and the runner.
type OpError struct {
	Kind   ErrorKind
	Phase  string
	Detail string
	Err    error
}

func (e *OpError) Error() string {
	msg := string(e.Kind)
	if e.Phase != "" {
		msg = e.Phase + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() error { return e.Err }

// Reason is the short, user-facing explanation used in skip outcomes.
func (e *OpError) Reason() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// NewError builds an OpError without a cause.
func NewError(kind ErrorKind, detail string) *OpError {
	return &OpError{Kind: kind, Detail: detail}
}

// WrapError attaches a kind and detail to a cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *OpError {
	return &OpError{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// ElementNotFound is the error for a locator that did not become ready within the bounded wait.
func ElementNotFound(loc Locator, err error) *OpError {
	return &OpError{Kind: KindElementNotFound, Detail: "element not found: " + loc.String(), Err: err}
}

// KindOf returns the kind of the first OpError in err's chain, or KindDriver for
// any other non-nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindDriver
}

// WithPhase tags err with the phase it happened in, keeping an existing phase.
func WithPhase(err error, phase string) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		if opErr.Phase == "" {
			opErr.Phase = phase
		}
		return err
	}
	return &OpError{Kind: KindDriver, Phase: phase, Err: err}
}
