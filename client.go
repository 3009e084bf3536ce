package memcache

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/colinmarc/memcache/wire"
)

// DialContextFunc dials a single network connection. Compatible with
// net.Dialer.DialContext; grounded on the teacher's identically-named type
// in client.go, generalized to carry through Connect's context argument.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SecureTransportFunc wraps a freshly dialed connection (TLS, a SASL
// handshake, anything §3 calls "secure_transport") before the protocol
// starts talking to it. nil means no wrapping.
type SecureTransportFunc func(net.Conn) (net.Conn, error)

// ServerEndpoint names one memcached server: a TCP host:port pair or a
// Unix domain socket path, immutable once constructed (§3).
type ServerEndpoint struct {
	Network string // "tcp" or "unix"
	Address string // "host:port" for tcp, filesystem path for unix
}

// TCPEndpoint builds a TCP ServerEndpoint from a "host:port" address.
func TCPEndpoint(address string) ServerEndpoint {
	return ServerEndpoint{Network: "tcp", Address: address}
}

// UnixEndpoint builds a Unix domain socket ServerEndpoint from a path.
func UnixEndpoint(path string) ServerEndpoint {
	return ServerEndpoint{Network: "unix", Address: path}
}

func (e ServerEndpoint) String() string {
	if e.Network == "unix" {
		return "unix:" + e.Address
	}
	return e.Address
}

// ParseEndpoint accepts either a bare "host:port" (assumed tcp) or a
// "unix:/path/to/sock" string, the two shapes servers.Servers.List entries
// take (§6.3). This is the single place that decides the AF_INET vs
// AF_UNIX split the original client makes from the address shape alone.
func ParseEndpoint(s string) ServerEndpoint {
	if rest, ok := strings.CutPrefix(s, "unix:"); ok {
		return UnixEndpoint(rest)
	}
	return TCPEndpoint(s)
}

// Config configures a SingleClient. Zero-value fields are filled with
// defaults in NewSingleClient, mirroring the teacher's NewClient pattern
// of post-processing a Config value rather than requiring every field set.
type Config struct {
	// ConnectTimeout bounds the initial dial. Default 1s, the same
	// default pymemcache's base.Client uses.
	ConnectTimeout time.Duration

	// Timeout bounds every subsequent read/write on the connection.
	// Zero means no deadline.
	Timeout time.Duration

	// NoDelay sets TCP_NODELAY on TCP endpoints after connecting.
	NoDelay bool

	// KeyPrefix is prepended to every key before it goes on the wire and
	// stripped back off when the key is echoed in a response (§3: "a
	// client-configured byte prefix applied to every key"). Counted
	// against MaxKeyLength after prefixing.
	KeyPrefix []byte

	// DefaultNoReply is the noreply value used by any command whose
	// caller didn't set StoreOptions.NoReply explicitly. cas, incr and
	// decr ignore this and always wait for a reply (§4.2).
	DefaultNoReply bool

	// AllowUnicodeKeys permits non-ASCII bytes in keys. Off by default,
	// matching pymemcache's allow_unicode_keys=False default.
	AllowUnicodeKeys bool

	// IgnoreExc, when true, makes Get, GetMany, Gets and GetsMany
	// swallow any error, protocol or I/O, and return an empty result
	// instead of propagating it (§7 rule 2). Storage and misc commands,
	// Stats and CacheMemLimit always propagate regardless of this flag.
	IgnoreExc bool

	// Serde converts values to and from wire bytes plus flags (§6.2).
	// Defaults to DefaultSerde{}.
	Serde Serde

	// Dial opens the underlying network connection. Defaults to
	// (&net.Dialer{}).DialContext.
	Dial DialContextFunc

	// SecureTransport optionally wraps the dialed connection before any
	// protocol traffic is sent.
	SecureTransport SecureTransportFunc
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = time.Second
	}
	if c.Serde == nil {
		c.Serde = DefaultSerde{}
	}
	if c.Dial == nil {
		var d net.Dialer
		c.Dial = d.DialContext
	}
	return c
}

// SingleClient is the lowest-level memcache client (§4.2): one lazily
// established connection to one ServerEndpoint, no pooling and no
// sharding. It is not safe for concurrent use by multiple goroutines;
// exclusivity is the caller's job (typically ConnectionPool's).
//
// Grounded on the teacher's conn/pooledClient split in client.go, collapsed
// into a single type since the text protocol's SingleClient owns its
// socket directly rather than borrowing one from a freelist.
type SingleClient struct {
	endpoint ServerEndpoint
	config   Config

	conn net.Conn
	fr   *framer
}

// NewSingleClient constructs a client for endpoint. It does not connect
// until the first command is issued (§4.2: "connect lazily").
func NewSingleClient(endpoint ServerEndpoint, config Config) *SingleClient {
	return &SingleClient{
		endpoint: endpoint,
		config:   config.withDefaults(),
	}
}

// Endpoint returns the server this client talks to.
func (c *SingleClient) Endpoint() ServerEndpoint { return c.endpoint }

// Connected reports whether the underlying socket is currently open.
func (c *SingleClient) Connected() bool { return c.conn != nil }

// Connect establishes the connection if it isn't already open. Calling it
// explicitly is optional; every command dispatch calls it on your behalf.
func (c *SingleClient) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if c.config.ConnectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	conn, err := c.config.Dial(dialCtx, c.endpoint.Network, c.endpoint.Address)
	if err != nil {
		return err
	}

	if c.endpoint.Network == "tcp" && c.config.NoDelay {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
	}

	if c.config.SecureTransport != nil {
		wrapped, err := c.config.SecureTransport(conn)
		if err != nil {
			conn.Close()
			return err
		}
		conn = wrapped
	}

	c.conn = conn
	c.fr = newFramer(conn)
	return nil
}

// Close tears down the connection if open. Idempotent: closing an already
// closed (or never-opened) client is a no-op (§4.2).
func (c *SingleClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.fr = nil
	return err
}

func (c *SingleClient) ensureConn(ctx context.Context) error {
	if c.conn == nil {
		return c.Connect(ctx)
	}
	return nil
}

func (c *SingleClient) applyDeadline() {
	if c.config.Timeout > 0 && c.conn != nil {
		c.conn.SetDeadline(time.Now().Add(c.config.Timeout))
	}
}

// do runs fn against a connected socket, applying the §7 rule-1 contract:
// any error at all closes the connection before propagating, since the
// framer's carry buffer and the socket's read position are no longer
// trustworthy once a command fails partway through.
func (c *SingleClient) do(ctx context.Context, fn func() error) error {
	if err := c.ensureConn(ctx); err != nil {
		return err
	}
	c.applyDeadline()

	err := fn()
	if err != nil {
		c.Close()
	}
	return err
}

// doFetch is do's fetch-family counterpart: when IgnoreExc is set, any
// error (protocol or I/O) is swallowed after closing the connection, and
// reset is called so the caller can return its zero-value result instead
// of a partially filled one (§7 rule 2 applies only to the fetch family).
func (c *SingleClient) doFetch(ctx context.Context, fn func() error, reset func()) error {
	err := c.do(ctx, fn)
	if err != nil && c.config.IgnoreExc {
		reset()
		return nil
	}
	return err
}

// resolveNoReply applies §4.2's default-noreply policy: an explicit
// per-call value wins, cas/incr/decr always wait (forceWait), otherwise
// fall back to the client's configured default.
func (c *SingleClient) resolveNoReply(opt *bool, forceWait bool) bool {
	if opt != nil {
		return *opt
	}
	if forceWait {
		return false
	}
	return c.config.DefaultNoReply
}

// encodeKey applies the key prefix and ASCII policy, then validates the
// result against §3's key grammar.
func (c *SingleClient) encodeKey(key string) ([]byte, error) {
	if !c.config.AllowUnicodeKeys {
		for i := 0; i < len(key); i++ {
			if key[i] > 0x7f {
				return nil, newIllegalInput("key %q contains non-ASCII byte (set AllowUnicodeKeys to permit it)", key)
			}
		}
	}

	var wireKey []byte
	if len(c.config.KeyPrefix) > 0 {
		wireKey = make([]byte, 0, len(c.config.KeyPrefix)+len(key))
		wireKey = append(wireKey, c.config.KeyPrefix...)
		wireKey = append(wireKey, key...)
	} else {
		wireKey = []byte(key)
	}

	if !wire.ValidKey(wireKey) {
		return nil, newIllegalInput("invalid key %q", key)
	}
	return wireKey, nil
}

// stripPrefix reverses encodeKey's prefixing so fetch results can be keyed
// by the caller's original strings.
func (c *SingleClient) stripPrefix(wireKey []byte) string {
	if len(c.config.KeyPrefix) > 0 {
		return string(wireKey[len(c.config.KeyPrefix):])
	}
	return string(wireKey)
}
