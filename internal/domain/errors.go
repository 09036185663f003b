package domain

import "errors"

type ErrorKind string

const (
	KindBadRequest          ErrorKind = "BAD_REQUEST"
	KindUnsupportedMethod   ErrorKind = "UNSUPPORTED_METHOD"
	KindInvalidURL          ErrorKind = "INVALID_URL"
	KindUpstreamUnreachable ErrorKind = "UPSTREAM_UNREACHABLE"
	KindConnectFailure      ErrorKind = "CONNECT_FAILURE"
	KindTimeout             ErrorKind = "TIMEOUT"
	KindDecodeFailure       ErrorKind = "DECODE_FAILURE"
	KindSendFailure         ErrorKind = "SEND_FAILURE"
	KindReceiveFailure      ErrorKind = "RECEIVE_FAILURE"
)

// Error is the typed failure returned by the proxy engine, GraphQL adapter and relay.
// Message is safe to show to callers.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
