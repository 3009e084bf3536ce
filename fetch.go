package memcache

import (
	"bytes"
	"context"
	"strconv"

	"github.com/colinmarc/memcache/internal/bufferpool"
	"github.com/colinmarc/memcache/wire"
)

// valueLine holds the parsed fields of one "VALUE <key> <flags> <bytes>
// [<cas>]" reply line; fetchLoop reads the data block that follows it.
// Grounded on pymemcache's Client._fetch_cmd, which loops over VALUE
// lines until it hits END.
type valueLine struct {
	key   string
	flags uint32
	size  int
	cas   CASToken
}

func parseValueLine(line []byte) (valueLine, error) {
	fields := bytes.Fields(line)
	if len(fields) < 4 {
		return valueLine{}, &UnknownResponseError{Line: string(line)}
	}

	flags, err := strconv.ParseUint(string(fields[2]), 10, 32)
	if err != nil {
		return valueLine{}, &UnknownResponseError{Line: string(line)}
	}
	size, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return valueLine{}, &UnknownResponseError{Line: string(line)}
	}

	vl := valueLine{
		key:   string(fields[1]),
		flags: uint32(flags),
		size:  size,
	}
	if len(fields) >= 5 {
		vl.cas = CASToken(fields[4])
	}
	return vl, nil
}

// fetchLoop reads VALUE lines and their data blocks until END, invoking
// onValue for each one. It terminates on the first error from the framer
// or from onValue.
func (c *SingleClient) fetchLoop(onValue func(vl valueLine, data []byte) error) error {
	for {
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		s := string(line)
		if s == wire.StatusEnd {
			return nil
		}
		if !hasPrefix(s, wire.StatusValue) {
			return classifyErrorLine(s)
		}

		vl, err := parseValueLine(line)
		if err != nil {
			return err
		}
		data, err := c.fr.readValue(vl.size)
		if err != nil {
			return err
		}
		if err := onValue(vl, data); err != nil {
			return err
		}
	}
}

func writeFetchLine(buf *bytes.Buffer, cmd string, keys [][]byte) {
	buf.WriteString(cmd)
	for _, k := range keys {
		buf.WriteByte(' ')
		buf.Write(k)
	}
	buf.WriteString(wire.CRLF)
}

// Get fetches a single key, returning (result, false, nil) on a cache
// miss — the "no error, no value" contract §7 assigns to ErrCacheMiss.
func (c *SingleClient) Get(ctx context.Context, key string) (GetResult, bool, error) {
	results, err := c.GetMany(ctx, []string{key})
	if err != nil {
		return GetResult{}, false, err
	}
	res, ok := results[key]
	return res, ok, nil
}

// GetMany fetches multiple keys in a single round trip. Keys absent from
// the server are simply absent from the returned map (§4.2): no error is
// raised for a partial miss.
func (c *SingleClient) GetMany(ctx context.Context, keys []string) (map[string]GetResult, error) {
	results := make(map[string]GetResult, len(keys))

	wireKeys, reverse, err := c.encodeKeys(keys)
	if err != nil {
		return nil, err
	}

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	writeFetchLine(buf, wire.CmdGet, wireKeys)

	err = c.doFetch(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		return c.fetchLoop(func(vl valueLine, data []byte) error {
			value, err := c.config.Serde.Deserialize(reverse[vl.key], data, vl.flags)
			if err != nil {
				return err
			}
			results[reverse[vl.key]] = GetResult{Value: value, Flags: vl.flags}
			return nil
		})
	}, func() { clear(results) })
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Gets fetches a single key along with its CAS token.
func (c *SingleClient) Gets(ctx context.Context, key string) (GetsResult, bool, error) {
	results, err := c.GetsMany(ctx, []string{key})
	if err != nil {
		return GetsResult{}, false, err
	}
	res, ok := results[key]
	return res, ok, nil
}

// GetsMany fetches multiple keys along with their CAS tokens.
func (c *SingleClient) GetsMany(ctx context.Context, keys []string) (map[string]GetsResult, error) {
	results := make(map[string]GetsResult, len(keys))

	wireKeys, reverse, err := c.encodeKeys(keys)
	if err != nil {
		return nil, err
	}

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	writeFetchLine(buf, wire.CmdGets, wireKeys)

	err = c.doFetch(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		return c.fetchLoop(func(vl valueLine, data []byte) error {
			value, err := c.config.Serde.Deserialize(reverse[vl.key], data, vl.flags)
			if err != nil {
				return err
			}
			results[reverse[vl.key]] = GetsResult{Value: value, Flags: vl.flags, CAS: vl.cas}
			return nil
		})
	}, func() { clear(results) })
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *SingleClient) encodeKeys(keys []string) ([][]byte, map[string]string, error) {
	wireKeys := make([][]byte, 0, len(keys))
	reverse := make(map[string]string, len(keys))
	for _, key := range keys {
		wk, err := c.encodeKey(key)
		if err != nil {
			return nil, nil, err
		}
		wireKeys = append(wireKeys, wk)
		reverse[string(wk)] = key
	}
	return wireKeys, reverse, nil
}

// Stats issues a `stats` command (optionally with a sub-argument such as
// "slabs" or "items", per §4.2) and returns the server's name/value pairs.
// Besides the ordinary "STAT <name> <value>" lines, the cachedump variant
// (stats with a "cachedump" sub-argument) emits "ITEM <name> <rest...>"
// lines instead; those are rejoined the same way, with the remaining
// fields re-joined by a space into a single value string.
func (c *SingleClient) Stats(ctx context.Context, subArg string) (map[string]string, error) {
	stats := make(map[string]string)

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdStats)
	if subArg != "" {
		buf.WriteByte(' ')
		buf.WriteString(subArg)
	}
	buf.WriteString(wire.CRLF)

	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		for {
			line, err := c.fr.readLine()
			if err != nil {
				return err
			}
			s := string(line)
			if s == wire.StatusEnd {
				return nil
			}
			fields := bytes.Fields(line)
			switch {
			case hasPrefix(s, wire.StatusStat):
				if len(fields) >= 3 {
					stats[string(fields[1])] = string(fields[2])
				} else if len(fields) == 2 {
					stats[string(fields[1])] = ""
				}
			case hasPrefix(s, wire.StatusItem):
				if len(fields) >= 3 {
					stats[string(fields[1])] = string(bytes.Join(fields[2:], []byte(" ")))
				} else if len(fields) == 2 {
					stats[string(fields[1])] = ""
				}
			default:
				return classifyErrorLine(s)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CacheMemLimit sets the per-slab memory limit in megabytes (§4.2,
// supplemental feature carried from pymemcache's cache_memlimit). The
// server's OK reply is reported as StoreStored.
func (c *SingleClient) CacheMemLimit(ctx context.Context, megabytes int) (StoreStatus, error) {
	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	buf.WriteString(wire.CmdCacheMemLimit)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(megabytes))
	buf.WriteString(wire.CRLF)

	var status StoreStatus
	err := c.do(ctx, func() error {
		if _, err := c.conn.Write(buf.Bytes()); err != nil {
			return err
		}
		line, err := c.fr.readLine()
		if err != nil {
			return err
		}
		if string(line) == wire.StatusOK {
			status = StoreStored
			return nil
		}
		return classifyErrorLine(string(line))
	})
	return status, err
}
