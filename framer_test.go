package memcache

import (
	"errors"
	"io"
	"testing"

	"github.com/colinmarc/memcache/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerReadLine(t *testing.T) {
	conn := testutils.NewConnectionMock("STORED\r\n")
	fr := newFramer(conn)

	line, err := fr.readLine()
	require.NoError(t, err)
	assert.Equal(t, "STORED", string(line))
}

func TestFramerReadLineAcrossChunks(t *testing.T) {
	// Force the carry buffer to see the CRLF split across two recv()
	// calls by writing a line longer than recvChunkSize whose CR is the
	// last byte of the second chunk and whose LF starts the third.
	payload := make([]byte, 2*recvChunkSize-1)
	for i := range payload {
		payload[i] = 'a'
	}
	conn := testutils.NewConnectionMock(string(payload) + "\r\n")
	fr := newFramer(conn)

	line, err := fr.readLine()
	require.NoError(t, err)
	assert.Equal(t, payload, line)
}

func TestFramerReadLineMultiple(t *testing.T) {
	conn := testutils.NewConnectionMock("VALUE foo 0 3\r\n", "bar\r\n", "END\r\n")
	fr := newFramer(conn)

	line, err := fr.readLine()
	require.NoError(t, err)
	assert.Equal(t, "VALUE foo 0 3", string(line))

	value, err := fr.readValue(3)
	require.NoError(t, err)
	assert.Equal(t, "bar", string(value))

	line, err = fr.readLine()
	require.NoError(t, err)
	assert.Equal(t, "END", string(line))
}

func TestFramerReadValueAcrossChunks(t *testing.T) {
	data := make([]byte, recvChunkSize*2)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	conn := testutils.NewConnectionMock(string(data) + "\r\n")
	fr := newFramer(conn)

	value, err := fr.readValue(len(data))
	require.NoError(t, err)
	assert.Equal(t, data, value)
}

func TestFramerUnexpectedCloseMidLine(t *testing.T) {
	conn := &closingConn{data: []byte("STOR")}
	fr := newFramer(conn)

	_, err := fr.readLine()
	var closeErr *UnexpectedCloseError
	require.True(t, errors.As(err, &closeErr))
}

func TestFramerUnexpectedCloseMidValue(t *testing.T) {
	conn := &closingConn{data: []byte("VALUE foo 0 10\r\nshort")}
	fr := newFramer(conn)

	_, err := fr.readLine()
	require.NoError(t, err)

	_, err = fr.readValue(10)
	var closeErr *UnexpectedCloseError
	require.True(t, errors.As(err, &closeErr))
}

// closingConn returns data once and then io.EOF, simulating a peer that
// closes mid-frame.
type closingConn struct {
	testutils.ConnectionMock
	data []byte
	sent bool
}

func (c *closingConn) Read(b []byte) (int, error) {
	if c.sent {
		return 0, io.EOF
	}
	c.sent = true
	n := copy(b, c.data)
	return n, nil
}
