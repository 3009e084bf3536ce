package memcache

import (
	"bytes"
	"errors"
	"net"
	"syscall"

	"github.com/colinmarc/memcache/wire"
)

// recvChunkSize is the fixed-size read requested from the socket when the
// carry buffer doesn't already hold a complete frame. Mirrors the
// RECV_SIZE constant pymemcache's base.py uses for the same purpose.
const recvChunkSize = 4096

// framer implements §4.1's two read primitives over a net.Conn, carrying
// bytes that belong to a reply not yet fully consumed across calls.
// SingleClient holds one framer per connection and drops it together with
// that connection, so carried bytes always come from the socket the framer
// reads and belong to replies not yet consumed.
type framer struct {
	conn  net.Conn
	carry []byte
}

func newFramer(conn net.Conn) *framer {
	return &framer{conn: conn}
}

// recv reads up to recvChunkSize bytes, transparently retrying on EINTR.
func (f *framer) recv() ([]byte, error) {
	buf := make([]byte, recvChunkSize)
	for {
		n, err := f.conn.Read(buf)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if n == 0 {
				return nil, err
			}
			return buf[:n], err
		}
		return buf[:n], nil
	}
}

// readLine returns the next CRLF-delimited line, without the terminator,
// consuming it (and the terminator) from the carry buffer. Bytes after the
// line remain in f.carry for the next call.
func (f *framer) readLine() ([]byte, error) {
	for {
		if idx := bytes.Index(f.carry, []byte(wire.CRLF)); idx >= 0 {
			line := append([]byte(nil), f.carry[:idx]...)
			f.carry = f.carry[idx+2:]
			return line, nil
		}

		// No full line yet; appending the next chunk to carry before
		// re-searching means a CRLF split across the chunk boundary is
		// still found by the same bytes.Index call above.
		chunk, err := f.recv()
		if len(chunk) > 0 {
			f.carry = append(f.carry, chunk...)
		}
		if err != nil {
			if len(f.carry) > 0 {
				return nil, &UnexpectedCloseError{Context: "read_line: peer closed mid-line"}
			}
			return nil, err
		}
	}
}

// readValue reads exactly size bytes of value data followed by a literal
// CRLF terminator, which is stripped before returning.
func (f *framer) readValue(size int) ([]byte, error) {
	need := size + 2
	for len(f.carry) < need {
		chunk, err := f.recv()
		if len(chunk) > 0 {
			f.carry = append(f.carry, chunk...)
		}
		if err != nil {
			if len(f.carry) < need {
				return nil, &UnexpectedCloseError{Context: "read_value: peer closed mid-value"}
			}
			break
		}
	}
	value := append([]byte(nil), f.carry[:size]...)
	f.carry = f.carry[need:]
	return value, nil
}

// reset drops any carried bytes. SingleClient.Close does not call it: Close
// discards the whole framer along with the connection.
func (f *framer) reset() {
	f.carry = nil
}
