package memcache

import (
	"sort"

	"github.com/zeebo/xxh3"
)

// rendezvousHash implements Highest Random Weight (HRW) hashing (§4.4):
// each live node scores a key as hash(node + "-" + key), and the node
// with the highest score wins, ties broken lexicographically by node
// name. Adding or removing one node only reshuffles the keys that were
// routed to it, unlike mod-N hashing.
//
// Grounded on pymemcache's RendezvousHash (client/rendezvous.py), ported
// from murmur3_32 to xxh3.HashSeed — already a dependency of the
// teacher's server_selector.go, which uses the same hash for its Jump
// Hash selector — since both are non-cryptographic 32/64-bit string
// hashes interchangeable for this purpose.
type rendezvousHash struct {
	seed  uint64
	nodes []string
}

func newRendezvousHash(seed uint64) *rendezvousHash {
	return &rendezvousHash{seed: seed}
}

// addNode registers node if not already present.
func (r *rendezvousHash) addNode(node string) {
	for _, n := range r.nodes {
		if n == node {
			return
		}
	}
	r.nodes = append(r.nodes, node)
	sort.Strings(r.nodes)
}

// removeNode drops node from the live set.
func (r *rendezvousHash) removeNode(node string) {
	for i, n := range r.nodes {
		if n == node {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			return
		}
	}
}

func (r *rendezvousHash) score(node, key string) uint64 {
	buf := make([]byte, 0, len(node)+1+len(key))
	buf = append(buf, node...)
	buf = append(buf, '-')
	buf = append(buf, key...)
	return xxh3.HashSeed(buf, r.seed)
}

// getNode returns the winning node for key, or "" if there are no nodes
// (the rendezvous-hash "no node" sentinel; callers surface ErrNoServer).
func (r *rendezvousHash) getNode(key string) string {
	var (
		winner    string
		highScore uint64
		found     bool
	)

	for _, node := range r.nodes {
		score := r.score(node, key)
		switch {
		case !found || score > highScore:
			winner, highScore, found = node, score, true
		case score == highScore && node > winner:
			winner = node
		}
	}
	return winner
}

// Nodes returns the current live node set, sorted.
func (r *rendezvousHash) Nodes() []string {
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}
