package memcache

import (
	"bytes"
	"encoding/gob"
	"strconv"

	"github.com/colinmarc/memcache/wire"
)

// Serde is the value-encoding capability pair from §6.2: it binds
// in-memory objects to on-the-wire bytes plus the 16-bit flags tag
// memcached persists and returns verbatim. Grounded on pymemcache's
// PythonMemcacheSerializer (serde.py), which dispatches serialize/
// deserialize on Go's native type switch the same way the original
// dispatches on `type(value)`.
type Serde interface {
	// Serialize returns the byte payload for value and the flags to
	// store alongside it.
	Serialize(key string, value any) ([]byte, uint32, error)

	// Deserialize reconstructs a value from its stored bytes and flags.
	Deserialize(key string, data []byte, flags uint32) (any, error)
}

// DefaultSerde handles raw bytes, UTF-8 text, and native integers as its
// three explicit cases, the same ones pymemcache's default serializer
// special-cases before falling back to pickle (serde.py). Go has no
// universal object codec with pickle's "the stream names its own type"
// property, so the 4th, catch-all case (§6.2's "opaque object") instead
// uses encoding/gob, this module's closest dependency-free analogue:
// anything that isn't one of the three explicit types is gob-encoded and
// tagged with wire.FlagOpaqueValue.
type DefaultSerde struct{}

var _ Serde = DefaultSerde{}

func (DefaultSerde) Serialize(key string, value any) ([]byte, uint32, error) {
	switch v := value.(type) {
	case []byte:
		return v, wire.FlagRawBytes, nil
	case string:
		return []byte(v), wire.FlagUTF8Text, nil
	case int:
		return []byte(strconv.Itoa(v)), wire.FlagInteger, nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), wire.FlagInteger, nil
	case uint64:
		return []byte(strconv.FormatUint(v, 10)), wire.FlagInteger, nil
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(value); err != nil {
			return nil, 0, newIllegalInput("DefaultSerde cannot encode value of type %T: %v", value, err)
		}
		return buf.Bytes(), wire.FlagOpaqueValue, nil
	}
}

func (DefaultSerde) Deserialize(key string, data []byte, flags uint32) (any, error) {
	switch flags {
	case wire.FlagUTF8Text:
		return string(data), nil
	case wire.FlagInteger:
		// Integers come back as int64, or as uint64 when above the
		// int64 range.
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			if u, uerr := strconv.ParseUint(string(data), 10, 64); uerr == nil {
				return u, nil
			}
			// Unparsable despite the integer flag: fall back to raw
			// bytes rather than erroring the whole fetch.
			return data, nil
		}
		return n, nil
	case wire.FlagOpaqueValue:
		// The payload is a gob stream for whatever concrete type the
		// caller stored; this Serde has no way to name that type on the
		// way back out, so it hands back the raw gob bytes for the
		// caller to decode with gob.NewDecoder(bytes.NewReader(data))
		// into the type it already knows it stored.
		return data, nil
	default:
		// FlagRawBytes or any flag combination this Serde doesn't
		// recognize: return the raw bytes (§6.2).
		return data, nil
	}
}

// rawSerde stores and returns []byte unchanged, ignoring flags. Append and
// Prepend do not go through it (they write their []byte argument directly),
// and Cas uses the configured Serde.
type rawSerde struct{}

func (rawSerde) Serialize(key string, value any) ([]byte, uint32, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, 0, newIllegalInput("raw value must be []byte, got %T", value)
	}
	return b, 0, nil
}

func (rawSerde) Deserialize(key string, data []byte, flags uint32) (any, error) {
	return data, nil
}
