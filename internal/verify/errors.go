package verify

import "errors"

// FailureKind classifies why a verification did not succeed. The kind is
// never serialized, callers of the HTTP surface tell failures apart by message.
type FailureKind string

const (
	InvalidInput        FailureKind = "invalid_input"
	InvalidFormat       FailureKind = "invalid_format"
	UpstreamUnreachable FailureKind = "upstream_unreachable"
	NotFound            FailureKind = "not_found"
	DetailFetchFailed   FailureKind = "detail_fetch_failed"
	IncompleteData      FailureKind = "incomplete_data"
	Unexpected          FailureKind = "unexpected"
)

// Error is a classified verification failure. Message is the text placed in
// the envelope, Err the underlying cause if there is one.
type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind FailureKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a verification failure, Unexpected for any
// error that was not classified.
func KindOf(err error) FailureKind {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return Unexpected
}
