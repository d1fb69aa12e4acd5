package assistant

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for the caller: whether the request itself was at
// fault, referred to something missing, or hit a failing dependency.
type Kind string

const (
	KindInvalid  Kind = "invalid"
	KindNotFound Kind = "not_found"
	KindUpstream Kind = "upstream"
	KindInternal Kind = "internal"
)

// Error is the only error type returned by Service.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts the classified error from err. Unclassified errors are
// reported as KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
}

func invalid(code, message string, context map[string]any) *Error {
	return &Error{Kind: KindInvalid, Code: code, Message: message, Context: context}
}

func notFound(code, message string, context map[string]any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message, Context: context}
}

func upstream(code, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: message, Err: err}
}
