package memcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendezvousHashNoNodesReturnsEmpty(t *testing.T) {
	r := newRendezvousHash(0)
	assert.Equal(t, "", r.getNode("foo"))
}

func TestRendezvousHashDeterministic(t *testing.T) {
	r := newRendezvousHash(42)
	r.addNode("a:1")
	r.addNode("b:2")
	r.addNode("c:3")

	first := r.getNode("somekey")
	for i := 0; i < 100; i++ {
		require.Equal(t, first, r.getNode("somekey"))
	}
}

func TestRendezvousHashAddNodeIsIdempotent(t *testing.T) {
	r := newRendezvousHash(1)
	r.addNode("a:1")
	r.addNode("a:1")
	assert.Equal(t, []string{"a:1"}, r.Nodes())
}

func TestRendezvousHashRemoveNodeNoOpIfAbsent(t *testing.T) {
	r := newRendezvousHash(1)
	r.addNode("a:1")
	r.removeNode("b:2")
	assert.Equal(t, []string{"a:1"}, r.Nodes())
}

// TestRendezvousHashMinimalDisruption checks the defining HRW property:
// removing one node only moves the keys that were routed to it — keys
// that resolved elsewhere keep their assignment.
func TestRendezvousHashMinimalDisruption(t *testing.T) {
	r := newRendezvousHash(7)
	nodes := []string{"a:1", "b:2", "c:3", "d:4", "e:5"}
	for _, n := range nodes {
		r.addNode(n)
	}

	keys := make([]string, 500)
	before := make(map[string]string, len(keys))
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		before[keys[i]] = r.getNode(keys[i])
	}

	removed := "c:3"
	r.removeNode(removed)

	for _, key := range keys {
		prev := before[key]
		now := r.getNode(key)
		if prev != removed {
			assert.Equal(t, prev, now, "key %q routed away from a node that was not removed", key)
		}
	}
}

func TestRendezvousHashTieBreakPicksLexicographicallyGreater(t *testing.T) {
	r := newRendezvousHash(0)
	r.nodes = []string{"a", "b"}

	score := r.score("a", "x")
	got := r.getNode("x")
	if r.score("b", "x") == score {
		assert.Equal(t, "b", got)
	} else {
		assert.Contains(t, []string{"a", "b"}, got)
	}
}

func TestRendezvousHashDistributesAcrossNodes(t *testing.T) {
	r := newRendezvousHash(3)
	nodes := []string{"a:1", "b:2", "c:3"}
	for _, n := range nodes {
		r.addNode(n)
	}

	counts := make(map[string]int)
	for i := 0; i < 3000; i++ {
		key := fmt.Sprintf("key-%d", i)
		counts[r.getNode(key)]++
	}

	for _, n := range nodes {
		assert.Greater(t, counts[n], 0, "node %q never won any key", n)
	}
}
