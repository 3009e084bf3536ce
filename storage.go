package memcache

import (
	"bytes"
	"context"
	"strconv"

	"github.com/colinmarc/memcache/internal/bufferpool"
	"github.com/colinmarc/memcache/wire"
)

// writeStorageLine formats a storage-command request line plus its data
// block (§4.1: "<cmd> <key> <flags> <exptime> <bytes> [noreply]\r\n<data>\r\n").
// Grounded on the teacher's sendCommand in connection.go, which builds the
// same shape of line via a bytes.Buffer before writing it in one Flush.
func writeStorageLine(buf *bytes.Buffer, cmd string, key []byte, flags uint32, expire int32, data []byte, noreply bool) {
	buf.WriteString(cmd)
	buf.WriteByte(' ')
	buf.Write(key)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatUint(uint64(flags), 10))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(int64(expire), 10))
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(len(data)))
	if noreply {
		buf.WriteString(" noreply")
	}
	buf.WriteString(wire.CRLF)
	buf.Write(data)
	buf.WriteString(wire.CRLF)
}

func writeCasLine(buf *bytes.Buffer, key []byte, flags uint32, expire int32, data []byte, cas CASToken, noreply bool) {
	buf.WriteString(wire.CmdCas)
	buf.WriteByte(' ')
	buf.Write(key)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatUint(uint64(flags), 10))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(int64(expire), 10))
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(len(data)))
	buf.WriteByte(' ')
	buf.WriteString(string(cas))
	if noreply {
		buf.WriteString(" noreply")
	}
	buf.WriteString(wire.CRLF)
	buf.Write(data)
	buf.WriteString(wire.CRLF)
}

// readStoreStatus reads one status line and classifies it per §6.1's
// storage-family taxonomy.
func (c *SingleClient) readStoreStatus() (StoreStatus, error) {
	line, err := c.fr.readLine()
	if err != nil {
		return 0, err
	}
	return parseStoreStatus(line)
}

func parseStoreStatus(line []byte) (StoreStatus, error) {
	s := string(line)
	switch s {
	case wire.StatusStored:
		return StoreStored, nil
	case wire.StatusNotStored:
		return StoreNotStored, nil
	case wire.StatusExists:
		return StoreExists, nil
	case wire.StatusNotFound:
		return StoreNotFound, nil
	}
	return 0, classifyErrorLine(s)
}

// classifyErrorLine maps a non-success status line to the §7 error kind it
// names, or UnknownResponseError if it matches none of them.
func classifyErrorLine(line string) error {
	switch {
	case line == wire.StatusError:
		return &UnknownCommandError{Line: line}
	case hasPrefix(line, wire.StatusClientErrorPrefix):
		return &ClientError{Message: trimPrefixSpace(line, wire.StatusClientErrorPrefix)}
	case hasPrefix(line, wire.StatusServerErrorPrefix):
		return &ServerError{Message: trimPrefixSpace(line, wire.StatusServerErrorPrefix)}
	default:
		return &UnknownResponseError{Line: line}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func trimPrefixSpace(s, prefix string) string {
	rest := s[len(prefix):]
	if len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	return rest
}

func (c *SingleClient) storageCommand(ctx context.Context, cmd string, key string, value any, opts StoreOptions, forceWait bool) (StoreStatus, error) {
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return 0, err
	}

	data, flags, err := c.config.Serde.Serialize(key, value)
	if err != nil {
		return 0, err
	}
	if opts.Flags != nil {
		flags = *opts.Flags
	}

	noreply := c.resolveNoReply(opts.NoReply, forceWait)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	writeStorageLine(buf, cmd, wireKey, flags, opts.Expire, data, noreply)

	var status StoreStatus
	err = c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if noreply {
			status = StoreStored
			return nil
		}
		status, err = c.readStoreStatus()
		return err
	})
	return status, err
}

// Set unconditionally stores value under key (§4.2).
func (c *SingleClient) Set(ctx context.Context, key string, value any, opts StoreOptions) (StoreStatus, error) {
	return c.storageCommand(ctx, wire.CmdSet, key, value, opts, false)
}

// Add stores value under key only if key does not already exist.
func (c *SingleClient) Add(ctx context.Context, key string, value any, opts StoreOptions) (StoreStatus, error) {
	return c.storageCommand(ctx, wire.CmdAdd, key, value, opts, false)
}

// Replace stores value under key only if key already exists.
func (c *SingleClient) Replace(ctx context.Context, key string, value any, opts StoreOptions) (StoreStatus, error) {
	return c.storageCommand(ctx, wire.CmdReplace, key, value, opts, false)
}

// Append appends raw bytes to an existing item's value. Per §4.2, append
// and prepend operate on the wire representation directly and ignore any
// configured Serde: value must already be []byte.
func (c *SingleClient) Append(ctx context.Context, key string, value []byte, opts StoreOptions) (StoreStatus, error) {
	opts.Flags = nil
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return 0, err
	}
	return c.rawStorageCommand(ctx, wire.CmdAppend, wireKey, value, opts, false)
}

// Prepend prepends raw bytes to an existing item's value.
func (c *SingleClient) Prepend(ctx context.Context, key string, value []byte, opts StoreOptions) (StoreStatus, error) {
	opts.Flags = nil
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return 0, err
	}
	return c.rawStorageCommand(ctx, wire.CmdPrepend, wireKey, value, opts, false)
}

func (c *SingleClient) rawStorageCommand(ctx context.Context, cmd string, wireKey []byte, data []byte, opts StoreOptions, forceWait bool) (StoreStatus, error) {
	noreply := c.resolveNoReply(opts.NoReply, forceWait)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	writeStorageLine(buf, cmd, wireKey, 0, opts.Expire, data, noreply)

	var status StoreStatus
	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if noreply {
			status = StoreStored
			return nil
		}
		var err error
		status, err = c.readStoreStatus()
		return err
	})
	return status, err
}

// Cas stores value under key only if the item's current CAS token still
// matches cas (§4.2). Always waits for a reply regardless of
// DefaultNoReply, since the caller needs to know whether the compare
// succeeded.
func (c *SingleClient) Cas(ctx context.Context, key string, value any, cas CASToken, opts StoreOptions) (StoreStatus, error) {
	wireKey, err := c.encodeKey(key)
	if err != nil {
		return 0, err
	}

	data, flags, err := c.config.Serde.Serialize(key, value)
	if err != nil {
		return 0, err
	}
	if opts.Flags != nil {
		flags = *opts.Flags
	}

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	writeCasLine(buf, wireKey, flags, opts.Expire, data, cas, false)

	var status StoreStatus
	err = c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		var err error
		status, err = c.readStoreStatus()
		return err
	})
	return status, err
}

// SetMany stores every key/value pair in values with the same Expire and
// noreply policy. Per §5 "Ordering" ("storage batches exploit this: N
// writes, N reads, matched positionally"), it writes all N `set` lines in
// one buffer before reading any reply, rather than round-tripping once per
// key; the fixed key order chosen here is reused to match replies back up.
// Grounded on pymemcache's Client._store_cmd batching and on this same
// codebase's GetMany, which already pipelines its N keys the same way.
func (c *SingleClient) SetMany(ctx context.Context, values map[string]any, opts StoreOptions) (map[string]StoreStatus, error) {
	results := make(map[string]StoreStatus, len(values))
	if len(values) == 0 {
		return results, nil
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	wireKeys := make([][]byte, len(keys))
	datas := make([][]byte, len(keys))
	flagsList := make([]uint32, len(keys))
	for i, key := range keys {
		wireKey, err := c.encodeKey(key)
		if err != nil {
			return results, err
		}
		data, flags, err := c.config.Serde.Serialize(key, values[key])
		if err != nil {
			return results, err
		}
		if opts.Flags != nil {
			flags = *opts.Flags
		}
		wireKeys[i], datas[i], flagsList[i] = wireKey, data, flags
	}

	noreply := c.resolveNoReply(opts.NoReply, false)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	for i := range keys {
		writeStorageLine(buf, wire.CmdSet, wireKeys[i], flagsList[i], opts.Expire, datas[i], noreply)
	}

	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if noreply {
			for _, key := range keys {
				results[key] = StoreStored
			}
			return nil
		}
		for _, key := range keys {
			status, err := c.readStoreStatus()
			if err != nil {
				return err
			}
			results[key] = status
		}
		return nil
	})
	return results, err
}
