package memcache

import (
	"errors"
	"fmt"
)

// ErrCacheMiss names a cache miss. The fetch operations in this package do
// not return it: they report a miss through their found result or an absent
// map entry. isProtocolError classifies it as a protocol-level error.
var ErrCacheMiss = errors.New("memcache: cache miss")

// ErrPoolExhausted is returned by ConnectionPool.Acquire when the pool is at
// max_size and every member is leased out.
var ErrPoolExhausted = errors.New("memcache: pool exhausted")

// ErrNoServer is returned by HashClient routing when the live server set is
// empty ("no node", per the rendezvous-hash spec).
var ErrNoServer = errors.New("memcache: no server available")

// IllegalInputError reports a key or value that violates the static
// preconditions in §3 (too long, forbidden byte, value the Serde can't
// encode). It never reaches the wire.
type IllegalInputError struct {
	Reason string
}

func (e *IllegalInputError) Error() string {
	return "memcache: illegal input: " + e.Reason
}

func newIllegalInput(format string, args ...any) error {
	return &IllegalInputError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownCommandError wraps a server `ERROR` reply.
type UnknownCommandError struct {
	Line string
}

func (e *UnknownCommandError) Error() string {
	return "memcache: unknown command: " + e.Line
}

// ClientError wraps a server `CLIENT_ERROR <msg>` reply.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "memcache: client error: " + e.Message
}

// ServerError wraps a server `SERVER_ERROR <msg>` reply.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "memcache: server error: " + e.Message
}

// UnknownResponseError is raised when a reply's first token matches none of
// the recognized patterns in §6.1.
type UnknownResponseError struct {
	Line string
}

func (e *UnknownResponseError) Error() string {
	return "memcache: unrecognized response: " + e.Line
}

// UnexpectedCloseError is raised when the peer closes the connection
// mid-frame (partial line, or partial value block).
type UnexpectedCloseError struct {
	Context string
}

func (e *UnexpectedCloseError) Error() string {
	return "memcache: connection closed unexpectedly: " + e.Context
}

// isProtocolError reports whether err is one of the semantic (non-I/O)
// error kinds from §7 that must leave HashClient routing state unchanged
// (rule 3). I/O-class errors (anything else — net errors, timeouts,
// io.EOF surfaced without a typed wrapper) are the ones that drive the
// Healthy/Failing/Dead machine.
func isProtocolError(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case *IllegalInputError, *UnknownCommandError, *ClientError, *ServerError,
		*UnknownResponseError:
		return true
	}
	return errors.Is(err, ErrCacheMiss)
}
