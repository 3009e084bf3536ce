package memcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreStatusStoredAndString(t *testing.T) {
	cases := []struct {
		status StoreStatus
		stored bool
		label  string
	}{
		{StoreStored, true, "STORED"},
		{StoreNotStored, false, "NOT_STORED"},
		{StoreExists, false, "EXISTS"},
		{StoreNotFound, false, "NOT_FOUND"},
	}

	for _, c := range cases {
		assert.Equal(t, c.stored, c.status.Stored())
		assert.Equal(t, c.label, c.status.String())
	}
}

func TestBoolPtr(t *testing.T) {
	p := boolPtr(true)
	assert.NotNil(t, p)
	assert.True(t, *p)
}
