package memcache

import (
	"testing"
	"time"

	"github.com/colinmarc/memcache/internal/coarsetime"
	"github.com/colinmarc/memcache/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSingleServerHashClient builds a HashClient with exactly one server,
// whose ConnectionPool free list is seeded with a SingleClient already
// wired to a ConnectionMock — so the pool's Use never dials a real
// socket, only plays back scripted wire responses. Grounded on the same
// ConnectionMock injection pattern client_test.go uses for SingleClient.
func newSingleServerHashClient(addr string, responses ...string) (*HashClient, *testutils.ConnectionMock) {
	hc := NewHashClient(HashClientConfig{Servers: []string{addr}, PoolConfig: PoolConfig{MaxSize: 1}})
	conn := testutils.NewConnectionMock(responses...)
	client := &SingleClient{
		endpoint: ParseEndpoint(addr),
		config:   Config{}.withDefaults(),
		conn:     conn,
		fr:       newFramer(conn),
	}
	pool := hc.pools[addr]
	pool.free = append(pool.free, &pooledConn{client: client, lastUsed: coarsetime.Now()})
	return hc, conn
}

func TestHashClientNoServersReturnsErrNoServer(t *testing.T) {
	hc := NewHashClient(HashClientConfig{})
	_, _, err := hc.Get(t.Context(), "foo")
	require.ErrorIs(t, err, ErrNoServer)
}

func TestHashClientGetRoutesToSoleServer(t *testing.T) {
	hc, conn := newSingleServerHashClient("mock:1", "VALUE foo 16 3\r\n", "bar\r\n", "END\r\n")
	res, ok, err := hc.Get(t.Context(), "foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bar", res.Value)
	assert.Contains(t, conn.GetWrittenRequest(), "get foo")
}

func TestHashClientSetStored(t *testing.T) {
	hc, _ := newSingleServerHashClient("mock:1", "STORED\r\n")
	status, err := hc.Set(t.Context(), "foo", "bar", StoreOptions{})
	require.NoError(t, err)
	assert.True(t, status.Stored())
}

func TestHashClientDeleteDeleted(t *testing.T) {
	hc, _ := newSingleServerHashClient("mock:1", "DELETED\r\n")
	result, err := hc.Delete(t.Context(), "foo", nil)
	require.NoError(t, err)
	assert.Equal(t, Deleted, result)
}

func TestHashClientSetManyReturnsFailedKeys(t *testing.T) {
	hc, _ := newSingleServerHashClient("mock:1", "STORED\r\n", "NOT_STORED\r\n")
	failed, err := hc.SetMany(t.Context(), map[string]any{"a": "1"}, StoreOptions{})
	require.NoError(t, err)
	assert.Empty(t, failed)

	hc2, _ := newSingleServerHashClient("mock:1", "NOT_STORED\r\n")
	failed, err = hc2.SetMany(t.Context(), map[string]any{"a": "1"}, StoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, failed)
}

func TestHashClientGetManyMultiServerGrouping(t *testing.T) {
	hc := NewHashClient(HashClientConfig{PoolConfig: PoolConfig{MaxSize: 1}})
	addrs := []string{"mock:1", "mock:2", "mock:3"}

	conns := make(map[string]*testutils.ConnectionMock, len(addrs))
	keys := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		keys = append(keys, string(rune('a'+i%26))+string(rune('0'+i/26)))
	}

	for _, addr := range addrs {
		hc.AddServer(addr)
	}

	// Determine, via the same routing HashClient will use, which keys
	// land on which server, then script each mock connection to answer
	// a `get` for exactly its own keys.
	groups := hc.groupByServer(keys)
	for _, addr := range addrs {
		serverKeys := groups[addr]
		var responses []string
		for _, k := range serverKeys {
			responses = append(responses, "VALUE "+k+" 16 1\r\n", "x\r\n")
		}
		responses = append(responses, "END\r\n")
		conn := testutils.NewConnectionMock(responses...)
		conns[addr] = conn

		client := &SingleClient{
			endpoint: ParseEndpoint(addr),
			config:   Config{}.withDefaults(),
			conn:     conn,
			fr:       newFramer(conn),
		}
		pool := hc.pools[addr]
		pool.free = append(pool.free, &pooledConn{client: client, lastUsed: coarsetime.Now()})
	}

	results, err := hc.GetMany(t.Context(), keys)
	require.NoError(t, err)
	assert.Len(t, results, len(keys))
	for _, k := range keys {
		assert.Equal(t, "x", results[k].Value)
	}
}

func TestHashClientFailureStateMachineHealthyToFailingToDead(t *testing.T) {
	const addr = "127.0.0.1:1" // refuses connections outright
	hc := NewHashClient(HashClientConfig{
		Servers:       []string{addr},
		RetryAttempts: 2,
		RetryTimeout:  time.Millisecond,
		DeadTimeout:   time.Hour,
		PoolConfig:    PoolConfig{MaxSize: 1, ClientConfig: Config{ConnectTimeout: 50 * time.Millisecond}},
	})

	// Attempt 1: Healthy -> Failing.
	_, _, err := hc.Get(t.Context(), "foo")
	require.Error(t, err)
	hc.mu.Lock()
	st := hc.status[addr]
	assert.Equal(t, nodeFailing, st.state)
	hc.mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	// Attempt 2: still Failing, retry count climbs.
	_, _, err = hc.Get(t.Context(), "foo")
	require.Error(t, err)
	hc.mu.Lock()
	assert.Equal(t, nodeFailing, st.state)
	hc.mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	// Attempt 3: exceeds RetryAttempts -> condemned to Dead, removed from
	// the hasher entirely.
	_, _, err = hc.Get(t.Context(), "foo")
	require.Error(t, err)
	hc.mu.Lock()
	assert.Equal(t, nodeDead, st.state)
	assert.NotContains(t, hc.hasher.Nodes(), addr)
	hc.mu.Unlock()

	// With the sole server Dead, routing finds no node at all.
	_, _, err = hc.Get(t.Context(), "foo")
	require.ErrorIs(t, err, ErrNoServer)
}

func TestHashClientDeadRevivalReadmitsNodeAfterCooldown(t *testing.T) {
	const addr = "mock:1"
	hc := NewHashClient(HashClientConfig{DeadTimeout: time.Millisecond})
	hc.AddServer(addr)

	hc.mu.Lock()
	hc.hasher.removeNode(addr)
	hc.status[addr] = &nodeStatus{state: nodeDead, diedAt: coarsetime.Now().Add(-time.Hour)}
	hc.mu.Unlock()

	assert.NotContains(t, hc.Servers(), addr)

	time.Sleep(100 * time.Millisecond) // let coarsetime's clock move past diedAt+DeadTimeout

	_, pool, ok := hc.route("somekey")
	assert.True(t, ok)
	assert.NotNil(t, pool)

	hc.mu.Lock()
	assert.Equal(t, nodeHealthy, hc.status[addr].state)
	hc.mu.Unlock()
}

func TestHashClientIgnoreExcSwallowsNoServerError(t *testing.T) {
	hc := NewHashClient(HashClientConfig{IgnoreExc: true})
	result, ok, err := hc.Get(t.Context(), "foo")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, GetResult{}, result)
}

func TestHashClientAddServerIdempotent(t *testing.T) {
	hc := NewHashClient(HashClientConfig{Servers: []string{"mock:1"}})
	hc.AddServer("mock:1")
	assert.Len(t, hc.Servers(), 1)
}

func TestHashClientRemoveServerNoOpIfAbsent(t *testing.T) {
	hc := NewHashClient(HashClientConfig{Servers: []string{"mock:1"}})
	hc.RemoveServer("mock:2")
	assert.Len(t, hc.Servers(), 1)
}

func TestHashClientSyncServersReconciles(t *testing.T) {
	hc := NewHashClient(HashClientConfig{Servers: []string{"mock:1", "mock:2"}})
	hc.SyncServers(NewStaticServers("mock:2", "mock:3"))

	servers := hc.Servers()
	assert.ElementsMatch(t, []string{"mock:2", "mock:3"}, servers)
}

func TestHashClientCircuitBreakerFactoryWiredPerServer(t *testing.T) {
	factory := NewGobreakerConfig(1, time.Minute, time.Minute)
	var built []string
	hc := NewHashClient(HashClientConfig{
		Servers: []string{"mock:1", "mock:2"},
		CircuitBreakerFactory: func(addr string) CircuitBreaker {
			built = append(built, addr)
			return factory(addr)
		},
	})

	assert.ElementsMatch(t, []string{"mock:1", "mock:2"}, built)
	hc.mu.Lock()
	assert.NotNil(t, hc.pools["mock:1"].breaker)
	assert.NotNil(t, hc.pools["mock:2"].breaker)
	hc.mu.Unlock()
}

func TestHashClientConnectionDestroyedRecordedInClientStats(t *testing.T) {
	// No scripted responses: the first read off the mock connection hits
	// io.EOF, an I/O-class (non-protocol) error, which drives Get's
	// pool.Use down the destroy path rather than release.
	hc, _ := newSingleServerHashClient("mock:1")
	_, _, err := hc.Get(t.Context(), "foo")
	require.Error(t, err)
	assert.Equal(t, uint64(1), hc.ClientStats().ConnectionsDestroyed)
}
