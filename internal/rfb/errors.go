package rfb

import "errors"

// Sentinel error kinds the session/server distinguish between.
// Session-ending errors are classified by errors.Is against these.
var (
	// ErrProtocolViolation covers a bad version string, unknown message
	// type, short frame, or inconsistent length.
	ErrProtocolViolation = errors.New("rfb: protocol violation")

	// ErrAuthFailed covers a VNC response mismatch or a client choosing a
	// security type the server did not offer.
	ErrAuthFailed = errors.New("rfb: authentication failed")

	// ErrStreamClosed covers EOF or a connection reset.
	ErrStreamClosed = errors.New("rfb: stream closed")

	// ErrTimeout covers a 30s stall on read or write.
	ErrTimeout = errors.New("rfb: timeout")

	// ErrResourceLimit covers an out-of-memory condition while encoding.
	ErrResourceLimit = errors.New("rfb: resource limit exceeded")
)

// wrapProtocol wraps err as a ProtocolViolation with added context.
func wrapProtocol(context string, err error) error {
	return &sessionError{kind: ErrProtocolViolation, context: context, cause: err}
}

type sessionError struct {
	kind    error
	context string
	cause   error
}

func (e *sessionError) Error() string {
	if e.cause != nil {
		return e.context + ": " + e.cause.Error()
	}
	return e.context
}

func (e *sessionError) Unwrap() error { return e.kind }

func (e *sessionError) Cause() error { return e.cause }
