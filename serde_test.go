package memcache

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/colinmarc/memcache/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSerdeRoundTrip(t *testing.T) {
	serde := DefaultSerde{}

	cases := []struct {
		name  string
		value any
	}{
		{"bytes", []byte("raw bytes")},
		{"string", "hello world"},
		{"int", 42},
		{"int64", int64(-7)},
		{"uint64", uint64(18446744073709551615)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, flags, err := serde.Serialize("key", c.value)
			require.NoError(t, err)

			got, err := serde.Deserialize("key", data, flags)
			require.NoError(t, err)
			assert.Equal(t, c.value, got)
		})
	}
}

func TestDefaultSerdeOpaqueObjectRoundTrip(t *testing.T) {
	serde := DefaultSerde{}
	type widget struct{ X int }

	data, flags, err := serde.Serialize("key", widget{X: 1})
	require.NoError(t, err)
	assert.Equal(t, wire.FlagOpaqueValue, flags)

	got, err := serde.Deserialize("key", data, flags)
	require.NoError(t, err)

	raw, ok := got.([]byte)
	require.True(t, ok)
	var decoded widget
	require.NoError(t, gob.NewDecoder(bytes.NewReader(raw)).Decode(&decoded))
	assert.Equal(t, widget{X: 1}, decoded)
}

func TestDefaultSerdeRejectsUnencodableType(t *testing.T) {
	serde := DefaultSerde{}
	_, _, err := serde.Serialize("key", func() {})
	require.Error(t, err)
	assert.IsType(t, &IllegalInputError{}, err)
}

func TestDefaultSerdeDeserializeUnknownFlagsFallsBackToRawBytes(t *testing.T) {
	serde := DefaultSerde{}
	got, err := serde.Deserialize("key", []byte("\x01\x02\x03"), uint32(1<<8))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x01\x02\x03"), got)
}

func TestDefaultSerdeDeserializeMalformedIntegerFallsBackToRawBytes(t *testing.T) {
	serde := DefaultSerde{}
	got, err := serde.Deserialize("key", []byte("not-a-number"), wire.FlagInteger)
	require.NoError(t, err)
	assert.Equal(t, []byte("not-a-number"), got)
}

func TestRawSerde(t *testing.T) {
	serde := rawSerde{}

	data, flags, err := serde.Serialize("key", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, uint32(0), flags)

	got, err := serde.Deserialize("key", []byte("payload"), 99)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, _, err = serde.Serialize("key", "not bytes")
	require.Error(t, err)
}
