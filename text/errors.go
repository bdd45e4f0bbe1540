package text

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Error taxonomy for text protocol operations.
//
// Item-level outcomes are sentinels (compare with errors.Is). Server-reported
// failures carry the server's message. Transport failures wrap the underlying
// I/O error. Nothing in this module retries on any of them.

var (
	// ErrItemNotFound is returned when a key is absent on get, delete, touch,
	// incr/decr and cas (NOT_FOUND).
	ErrItemNotFound = errors.New("memcache: item not found")

	// ErrStoreFailed is returned when a conditional store precondition failed
	// (NOT_STORED), e.g. add on an existing key.
	ErrStoreFailed = errors.New("memcache: item not stored")

	// ErrCASConflict is returned when a cas store lost the race (EXISTS).
	ErrCASConflict = errors.New("memcache: compare-and-swap conflict")

	// ErrConnectionClosed is returned when the peer closed the connection
	// before a complete frame was read.
	ErrConnectionClosed = errors.New("memcache: connection closed")
)

// ClientError represents a CLIENT_ERROR response from memcached.
// The server rejected the request as malformed: bad command line format,
// key too long, non-numeric value for incr/decr.
//
// The caller can correct and resend; the connection stays usable.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

// ServerError represents a SERVER_ERROR response (or a bare ERROR) from memcached.
// The message is passed through verbatim, e.g. "object too large for cache".
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

// ProtocolError is an unrecognized response line. The stream position is
// unknown after one, so the connection must not be reused.
type ProtocolError struct {
	Line    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("memcache protocol: %s: %q", e.Message, e.Line)
	}
	return fmt.Sprintf("memcache protocol: unexpected response %q", e.Line)
}

// ConnectionError wraps I/O errors from the transport.
//
// Common causes:
//   - endpoint unreachable (Op "dial")
//   - broken pipe or reset (Op "write")
//   - reset or deadline during a read (Op "read")
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError wraps err for operation op. A clean EOF or reset from
// the peer is reported as ErrConnectionClosed.
func NewConnectionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if op == "read" {
			return ErrConnectionClosed
		}
	}
	return &ConnectionError{Op: op, Err: err}
}

// IsConnectionFailure reports whether err means the transport is unusable.
// Only these errors count against a circuit breaker.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionClosed) {
		return true
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// ShouldCloseConnection reports whether the connection state is unknown after err.
// Server-reported outcomes (not found, not stored, CLIENT_ERROR, SERVER_ERROR)
// leave the stream aligned on the next response.
func ShouldCloseConnection(err error) bool {
	return IsConnectionFailure(err)
}
