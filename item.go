package memcache

// CASToken is the opaque, integer-shaped identifier memcached returns from
// `gets` and requires (unchanged) for a `cas` to succeed (§3, GLOSSARY).
// It is kept as the exact bytes the server sent rather than parsed into a
// uint64, since the protocol never promises the token fits one.
type CASToken string

// StoreStatus is the four-valued result of a storage command (§4.2):
// memcached's STORED/NOT_STORED/EXISTS/NOT_FOUND first-word taxonomy,
// kept as a small enum instead of pymemcache's bool-or-None so the four
// outcomes (stored, not stored, stale cas, no such key) stay
// distinguishable.
type StoreStatus int

const (
	// StoreStored: the server replied STORED.
	StoreStored StoreStatus = iota
	// StoreNotStored: the server replied NOT_STORED (add/replace/append/
	// prepend precondition failed).
	StoreNotStored
	// StoreExists: the server replied EXISTS (cas token stale).
	StoreExists
	// StoreNotFound: the server replied NOT_FOUND (cas/append/prepend
	// target missing).
	StoreNotFound
)

// Stored reports whether the operation actually wrote the item, the
// boolean collapse pymemcache's callers most often want.
func (s StoreStatus) Stored() bool { return s == StoreStored }

func (s StoreStatus) String() string {
	switch s {
	case StoreStored:
		return "STORED"
	case StoreNotStored:
		return "NOT_STORED"
	case StoreExists:
		return "EXISTS"
	case StoreNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// GetResult is one hit from a fetch-family command (§4.2).
type GetResult struct {
	Value any
	Flags uint32
}

// GetsResult is a GetResult plus the CAS token `gets` carries through,
// required to commit a later `cas` against the same item unchanged.
type GetsResult struct {
	Value any
	Flags uint32
	CAS   CASToken
}

// StoreOptions customizes a storage-family call. The zero value means
// "no expiry, no explicit flags override, default noreply policy".
type StoreOptions struct {
	// Expire is the TTL in seconds memcached should apply; 0 means "no
	// expiration" per the protocol's own convention, not "expire now".
	Expire int32

	// Flags, if non-nil, overrides whatever flags the Serde returned
	// (§4.2: "override with explicit flags if provided").
	Flags *uint32

	// NoReply, if non-nil, overrides the client's DefaultNoReply for
	// this call only. Ignored by Cas (§4.2: cas always waits for a
	// reply regardless of the default-noreply policy).
	NoReply *bool
}

func boolPtr(b bool) *bool { return &b }
