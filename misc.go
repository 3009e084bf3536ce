package memcache

import (
	"context"
	"strconv"

	"github.com/colinmarc/memcache/internal/bufferpool"
	"github.com/colinmarc/memcache/wire"
)

// DeleteResult is the two-valued outcome of a delete: deleted or not
// found. There is no third "rejected" case the way storage commands have
// EXISTS, so a bool return would do, but the named type keeps call sites
// self-documenting next to StoreStatus.
type DeleteResult bool

const (
	Deleted   DeleteResult = true
	NotDeleted DeleteResult = false
)

// Delete removes key. noreply, when nil, falls back to the client default.
func (c *SingleClient) Delete(ctx context.Context, key string, noreply *bool) (DeleteResult, error) {
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return NotDeleted, err
	}

	wait := c.resolveNoReply(noreply, false)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdDelete)
	buf.WriteByte(' ')
	buf.Write(wireKey)
	if wait {
		buf.WriteString(" noreply")
	}
	buf.WriteString(wire.CRLF)

	result := Deleted
	err = c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if wait {
			return nil
		}
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		switch string(line) {
		case wire.StatusDeleted:
			result = Deleted
		case wire.StatusNotFound:
			result = NotDeleted
		default:
			return classifyErrorLine(string(line))
		}
		return nil
	})
	return result, err
}

// DeleteMany removes every key given. Per §4.2 "Misc family" ("send one or
// more command lines, batched when plural"), all N delete lines are
// written in one buffer before any reply is read, and the N replies are
// then matched back to keys positionally, in the same spirit as GetMany.
func (c *SingleClient) DeleteMany(ctx context.Context, keys []string, noreply *bool) (map[string]DeleteResult, error) {
	results := make(map[string]DeleteResult, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	wireKeys := make([][]byte, len(keys))
	for i, key := range keys {
		wireKey, err := c.encodeKey(key)
		if err != nil {
			return results, err
		}
		wireKeys[i] = wireKey
	}

	wait := c.resolveNoReply(noreply, false)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	for _, wireKey := range wireKeys {
		buf.WriteString(wire.CmdDelete)
		buf.WriteByte(' ')
		buf.Write(wireKey)
		if wait {
			buf.WriteString(" noreply")
		}
		buf.WriteString(wire.CRLF)
	}

	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if wait {
			for _, key := range keys {
				results[key] = Deleted
			}
			return nil
		}
		for _, key := range keys {
			line, err := c.fr.readLine()
			if err != nil {
				return err
			}
			switch string(line) {
			case wire.StatusDeleted:
				results[key] = Deleted
			case wire.StatusNotFound:
				results[key] = NotDeleted
			default:
				return classifyErrorLine(string(line))
			}
		}
		return nil
	})
	return results, err
}

// incrDecr implements both incr and decr (§4.2): identical wire shape and
// reply grammar, differing only in the command verb.
func (c *SingleClient) incrDecr(ctx context.Context, cmd string, key string, delta uint64) (uint64, bool, error) {
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return 0, false, err
	}

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(cmd)
	buf.WriteByte(' ')
	buf.Write(wireKey)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatUint(delta, 10))
	buf.WriteString(wire.CRLF)

	var value uint64
	var found bool
	err = c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		s := string(line)
		if s == wire.StatusNotFound {
			found = false
			return nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return classifyErrorLine(s)
		}
		value, found = n, true
		return nil
	})
	return value, found, err
}

// Incr atomically adds delta to an existing numeric value. incr and decr
// always wait for a reply: they take no noreply argument and ignore
// DefaultNoReply (§4.2).
func (c *SingleClient) Incr(ctx context.Context, key string, delta uint64) (uint64, bool, error) {
	return c.incrDecr(ctx, wire.CmdIncr, key, delta)
}

// Decr atomically subtracts delta from an existing numeric value, floored
// at zero by the server.
func (c *SingleClient) Decr(ctx context.Context, key string, delta uint64) (uint64, bool, error) {
	return c.incrDecr(ctx, wire.CmdDecr, key, delta)
}

// Touch updates key's expiration without fetching its value.
func (c *SingleClient) Touch(ctx context.Context, key string, expire int32, noreply *bool) (DeleteResult, error) {
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return NotDeleted, err
	}

	wait := c.resolveNoReply(noreply, false)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdTouch)
	buf.WriteByte(' ')
	buf.Write(wireKey)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(int64(expire), 10))
	if wait {
		buf.WriteString(" noreply")
	}
	buf.WriteString(wire.CRLF)

	result := Deleted
	err = c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if wait {
			return nil
		}
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		switch string(line) {
		case wire.StatusTouched:
			result = Deleted
		case wire.StatusNotFound:
			result = NotDeleted
		default:
			return classifyErrorLine(string(line))
		}
		return nil
	})
	return result, err
}

// TouchMany updates the expiration of every key given (supplemental
// feature from pymemcache's touch_many, §4.2 "Supplemental features").
// Like DeleteMany, it writes all N touch lines in one buffer and reads the
// N replies back positionally rather than round-tripping per key.
func (c *SingleClient) TouchMany(ctx context.Context, keys []string, expire int32, noreply *bool) (map[string]DeleteResult, error) {
	results := make(map[string]DeleteResult, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	wireKeys := make([][]byte, len(keys))
	for i, key := range keys {
		wireKey, err := c.encodeKey(key)
		if err != nil {
			return results, err
		}
		wireKeys[i] = wireKey
	}

	wait := c.resolveNoReply(noreply, false)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	for _, wireKey := range wireKeys {
		buf.WriteString(wire.CmdTouch)
		buf.WriteByte(' ')
		buf.Write(wireKey)
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(int64(expire), 10))
		if wait {
			buf.WriteString(" noreply")
		}
		buf.WriteString(wire.CRLF)
	}

	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if wait {
			for _, key := range keys {
				results[key] = Deleted
			}
			return nil
		}
		for _, key := range keys {
			line, err := c.fr.readLine()
			if err != nil {
				return err
			}
			switch string(line) {
			case wire.StatusTouched:
				results[key] = Deleted
			case wire.StatusNotFound:
				results[key] = NotDeleted
			default:
				return classifyErrorLine(string(line))
			}
		}
		return nil
	})
	return results, err
}

// FlushAll invalidates every item on the server, optionally after a delay
// in seconds.
func (c *SingleClient) FlushAll(ctx context.Context, delay int32, noreply *bool) error {
	wait := c.resolveNoReply(noreply, false)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdFlushAll)
	if delay != 0 {
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(int64(delay), 10))
	}
	if wait {
		buf.WriteString(" noreply")
	}
	buf.WriteString(wire.CRLF)

	return c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if wait {
			return nil
		}
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		if string(line) != wire.StatusOK {
			return classifyErrorLine(string(line))
		}
		return nil
	})
}

// Version returns the server's version string.
func (c *SingleClient) Version(ctx context.Context) (string, error) {
	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdVersion)
	buf.WriteString(wire.CRLF)

	var version string
	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		s := string(line)
		if !hasPrefix(s, wire.StatusVersion) {
			return classifyErrorLine(s)
		}
		version = trimPrefixSpace(s, wire.StatusVersion)
		return nil
	})
	return version, err
}

// Quit sends an explicit `quit` and closes the connection. memcached
// never replies to quit, so this is noreply by construction (§4.2,
// supplemental feature: pymemcache exposes quit as a first-class op
// rather than leaving it implicit in Close).
func (c *SingleClient) Quit(ctx context.Context) error {
	if err := c.ensureConn(ctx); err != nil {
		return err
	}
	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdQuit)
	buf.WriteString(wire.CRLF)
	_, writeErr := c.conn.Write(buf.Bytes())
	closeErr := c.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
