package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/colinmarc/memcache/internal/coarsetime"
)

// nodeState is the per-endpoint failure state machine from §4.4.
type nodeState int

const (
	nodeHealthy nodeState = iota
	nodeFailing
	nodeDead
)

type nodeStatus struct {
	state         nodeState
	attempts      int
	firstFailedAt time.Time
	diedAt        time.Time
}

// HashClientConfig configures a HashClient.
type HashClientConfig struct {
	// Servers lists the initial node set, each a "host:port" or
	// "unix:/path" string understood by ParseEndpoint.
	Servers []string

	// Seed parameterizes the rendezvous hash, letting two clusters with
	// identical node lists route differently.
	Seed uint64

	// RetryAttempts is the number of failed attempts tolerated before a
	// Failing endpoint is condemned to Dead. Zero or negative means an
	// endpoint is declared Dead on its very first I/O error (§4.4).
	RetryAttempts int

	// RetryTimeout is the cooldown a Failing endpoint must sit out
	// before the next attempt is allowed.
	RetryTimeout time.Duration

	// DeadTimeout is both how long a Dead endpoint waits before revival
	// is attempted, and the minimum interval between revival sweeps.
	DeadTimeout time.Duration

	// IgnoreExc, when true, makes every operation swallow unrecovered
	// errors and return the op's documented zero value instead (§4.4).
	IgnoreExc bool

	// PoolConfig is used for every per-server ConnectionPool.
	PoolConfig PoolConfig

	// CircuitBreakerFactory, if set, is called once per server address to
	// build that server's optional secondary CircuitBreaker layer (§4.4
	// DOMAIN STACK), installed on its ConnectionPool via
	// WithCircuitBreaker. NewGobreakerConfig returns a factory of this
	// shape. Nil means no breaker: only the mandatory Healthy/Failing/Dead
	// machine governs routing.
	CircuitBreakerFactory func(addr string) CircuitBreaker
}

// HashClient shards operations across a set of memcached servers using
// rendezvous hashing, tracking per-server health and quarantining
// unresponsive nodes (§4.4). Grounded on pymemcache's client/hash.py
// HashClient, adapted to Go's explicit mutex-guarded shared-state idiom
// per §5 ("a single mutex around HashClient mutation paths").
type HashClient struct {
	config HashClientConfig

	mu              sync.Mutex
	hasher          *rendezvousHash
	pools           map[string]*ConnectionPool
	status          map[string]*nodeStatus
	lastDeadCheckAt time.Time
	stats           *clientStatsCollector
}

// NewHashClient constructs a HashClient over the given server set.
func NewHashClient(config HashClientConfig) *HashClient {
	if config.RetryTimeout <= 0 {
		config.RetryTimeout = time.Second
	}
	if config.DeadTimeout <= 0 {
		config.DeadTimeout = 60 * time.Second
	}

	hc := &HashClient{
		config: config,
		hasher: newRendezvousHash(config.Seed),
		pools:  make(map[string]*ConnectionPool),
		status: make(map[string]*nodeStatus),
		stats:  newClientStatsCollector(),
	}
	for _, s := range config.Servers {
		hc.AddServer(s)
	}
	return hc
}

// AddServer registers a new node, idempotent if already present (§4.4).
func (hc *HashClient) AddServer(addr string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.addServerLocked(addr)
}

func (hc *HashClient) addServerLocked(addr string) {
	if _, ok := hc.pools[addr]; ok {
		return
	}
	pool := NewConnectionPool(ParseEndpoint(addr), hc.config.PoolConfig)
	pool.WithOnDestroy(hc.stats.recordConnectionDestroyed)
	if hc.config.CircuitBreakerFactory != nil {
		pool.WithCircuitBreaker(hc.config.CircuitBreakerFactory(addr))
	}
	hc.pools[addr] = pool
	hc.status[addr] = &nodeStatus{state: nodeHealthy}
	hc.hasher.addNode(addr)
}

// RemoveServer drops a node; a no-op if it isn't present (§4.4).
func (hc *HashClient) RemoveServer(addr string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hasher.removeNode(addr)
	delete(hc.pools, addr)
	delete(hc.status, addr)
}

// SyncServers reconciles the live node set to match provider's current
// List(): new addresses are added, addresses no longer listed are
// removed. Intended to be called periodically against a Servers backed
// by AWS auto-discovery (DiscoveredServers) so the cluster's node list
// tracks ElastiCache's own view of it.
func (hc *HashClient) SyncServers(provider Servers) {
	wanted := make(map[string]struct{})
	for _, addr := range provider.List() {
		wanted[addr] = struct{}{}
	}

	hc.mu.Lock()
	var toRemove []string
	for addr := range hc.pools {
		if _, ok := wanted[addr]; !ok {
			toRemove = append(toRemove, addr)
		}
	}
	var toAdd []string
	for addr := range wanted {
		if _, ok := hc.pools[addr]; !ok {
			toAdd = append(toAdd, addr)
		}
	}
	hc.mu.Unlock()

	for _, addr := range toRemove {
		hc.RemoveServer(addr)
	}
	for _, addr := range toAdd {
		hc.AddServer(addr)
	}
}

// Servers returns the currently live (non-dead) node addresses.
func (hc *HashClient) Servers() []string {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.hasher.Nodes()
}

// revive scans the dead set and readmits any endpoint whose cooldown has
// elapsed, at most once per DeadTimeout interval (§4.4 "Dead revival").
// Resolves the Open Question of exactly when last_dead_check_at advances:
// once per sweep, after the scan, not per-entry — so a sweep that revives
// nothing still delays the next sweep by a full DeadTimeout.
func (hc *HashClient) revive() {
	now := coarsetime.Now()
	if now.Sub(hc.lastDeadCheckAt) <= hc.config.DeadTimeout {
		return
	}

	anyDead := false
	for addr, st := range hc.status {
		if st.state != nodeDead {
			continue
		}
		anyDead = true
		if now.Sub(st.diedAt) > hc.config.DeadTimeout {
			st.state = nodeHealthy
			st.attempts = 0
			hc.hasher.addNode(addr)
		}
	}
	if anyDead {
		hc.lastDeadCheckAt = now
	}
}

// route resolves key to its elected server address and pool, applying
// dead-revival and the Failing-state cooldown check. ok is false if the
// call should short-circuit without issuing any I/O (no live server, or a
// Failing endpoint still in cooldown).
func (hc *HashClient) route(key string) (addr string, pool *ConnectionPool, ok bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.revive()

	addr = hc.hasher.getNode(key)
	if addr == "" {
		return "", nil, false
	}

	st := hc.status[addr]
	if st == nil || st.state == nodeHealthy {
		return addr, hc.pools[addr], true
	}

	// st.state == nodeFailing (Dead nodes are never returned by getNode,
	// since they've been removed from the hasher).
	now := coarsetime.Now()
	if st.attempts < hc.config.RetryAttempts && now.Sub(st.firstFailedAt) <= hc.config.RetryTimeout {
		return addr, nil, false
	}
	return addr, hc.pools[addr], true
}

// recordOutcome applies err to addr's failure state machine per §4.4. A
// nil or protocol-class err on a Healthy endpoint leaves state unchanged;
// an I/O-class err drives the Healthy→Failing→Dead progression.
func (hc *HashClient) recordOutcome(addr string, err error) {
	if isProtocolError(err) {
		return
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	st := hc.status[addr]
	if st == nil {
		return
	}

	if err == nil {
		if st.state == nodeFailing {
			st.state = nodeHealthy
			st.attempts = 0
		}
		return
	}

	now := coarsetime.Now()
	switch st.state {
	case nodeHealthy:
		st.state = nodeFailing
		st.attempts = 0
		st.firstFailedAt = now
		if hc.config.RetryAttempts <= 0 {
			hc.condemnLocked(addr, st, now)
		}
	case nodeFailing:
		st.attempts++
		st.firstFailedAt = now
		if st.attempts >= hc.config.RetryAttempts {
			hc.condemnLocked(addr, st, now)
		}
	}
}

func (hc *HashClient) condemnLocked(addr string, st *nodeStatus, now time.Time) {
	st.state = nodeDead
	st.diedAt = now
	hc.hasher.removeNode(addr)
}

// do runs fn against the pool for key's elected server, translating
// routing failures and pool/I/O errors into the failure state machine
// transitions and ignore_exc default-value behavior §4.4 specifies.
func (hc *HashClient) do(ctx context.Context, key string, ignoreExcDefault func(), fn func(*SingleClient) error) error {
	addr, pool, ok := hc.route(key)
	if !ok {
		if addr == "" {
			if hc.config.IgnoreExc {
				ignoreExcDefault()
				return nil
			}
			return ErrNoServer
		}
		// Failing endpoint still cooling down: short-circuit with the
		// caller's default value, no error (§4.4).
		ignoreExcDefault()
		return nil
	}

	err := pool.Use(ctx, fn)
	hc.recordOutcome(addr, err)

	if err != nil && hc.config.IgnoreExc {
		ignoreExcDefault()
		return nil
	}
	return err
}

// ClientStats returns a snapshot of this HashClient's operation counters
// (§2's ambient observability concern, not part of the wire protocol).
func (hc *HashClient) ClientStats() ClientStats {
	return hc.stats.snapshot()
}

// Get fetches a single key from its elected server.
func (hc *HashClient) Get(ctx context.Context, key string) (GetResult, bool, error) {
	var result GetResult
	var found bool
	err := hc.do(ctx, key, func() {}, func(c *SingleClient) error {
		var err error
		result, found, err = c.Get(ctx, key)
		return err
	})
	hc.stats.recordGet(found)
	if err != nil {
		hc.stats.recordError()
	}
	return result, found, err
}

// Gets fetches a single key plus its CAS token.
func (hc *HashClient) Gets(ctx context.Context, key string) (GetsResult, bool, error) {
	var result GetsResult
	var found bool
	err := hc.do(ctx, key, func() {}, func(c *SingleClient) error {
		var err error
		result, found, err = c.Gets(ctx, key)
		return err
	})
	return result, found, err
}

// groupByServer partitions keys by their elected server, preserving each
// server's slice in the caller's original key order (§4.4: "group keys by
// their elected server... preserve the caller's key order when sending").
func (hc *HashClient) groupByServer(keys []string) map[string][]string {
	groups := make(map[string][]string)
	for _, key := range keys {
		addr, _, ok := hc.route(key)
		if !ok {
			continue // no live server, or cooling down: omitted, per ignore_exc-style default
		}
		groups[addr] = append(groups[addr], key)
	}
	return groups
}

// GetMany fetches multiple keys, batching one `get` per elected server
// and aggregating the results. Keys routed to a dead or cooling-down
// server are simply absent from the result (§4.4 dead-routed keys are
// omitted rather than erroring, resolving the corresponding Open
// Question the same way a partial miss is handled).
func (hc *HashClient) GetMany(ctx context.Context, keys []string) (map[string]GetResult, error) {
	results := make(map[string]GetResult, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	for addr, serverKeys := range hc.groupByServer(keys) {
		pool := hc.poolFor(addr)
		if pool == nil {
			continue
		}
		err := pool.Use(ctx, func(c *SingleClient) error {
			partial, err := c.GetMany(ctx, serverKeys)
			for k, v := range partial {
				results[k] = v
			}
			return err
		})
		hc.recordOutcome(addr, err)
		if err != nil && !hc.config.IgnoreExc {
			return results, err
		}
	}
	return results, nil
}

// GetsMany fetches multiple keys with their CAS tokens, batched per
// server like GetMany.
func (hc *HashClient) GetsMany(ctx context.Context, keys []string) (map[string]GetsResult, error) {
	results := make(map[string]GetsResult, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	for addr, serverKeys := range hc.groupByServer(keys) {
		pool := hc.poolFor(addr)
		if pool == nil {
			continue
		}
		err := pool.Use(ctx, func(c *SingleClient) error {
			partial, err := c.GetsMany(ctx, serverKeys)
			for k, v := range partial {
				results[k] = v
			}
			return err
		})
		hc.recordOutcome(addr, err)
		if err != nil && !hc.config.IgnoreExc {
			return results, err
		}
	}
	return results, nil
}

func (hc *HashClient) poolFor(addr string) *ConnectionPool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.pools[addr]
}

// storageOp runs a single-key storage command through the failure
// wrapper, returning StoreNotStored as the ignore_exc/cooldown default
// (§4.4: "False for mutating ops").
func (hc *HashClient) storageOp(ctx context.Context, key string, fn func(*SingleClient) (StoreStatus, error)) (StoreStatus, error) {
	var status StoreStatus = StoreNotStored
	err := hc.do(ctx, key, func() { status = StoreNotStored }, func(c *SingleClient) error {
		var err error
		status, err = fn(c)
		return err
	})
	return status, err
}

// Set stores value under key on its elected server.
func (hc *HashClient) Set(ctx context.Context, key string, value any, opts StoreOptions) (StoreStatus, error) {
	hc.stats.recordSet()
	status, err := hc.storageOp(ctx, key, func(c *SingleClient) (StoreStatus, error) { return c.Set(ctx, key, value, opts) })
	if err != nil {
		hc.stats.recordError()
	}
	return status, err
}

// Add stores value under key only if absent.
func (hc *HashClient) Add(ctx context.Context, key string, value any, opts StoreOptions) (StoreStatus, error) {
	hc.stats.recordAdd()
	status, err := hc.storageOp(ctx, key, func(c *SingleClient) (StoreStatus, error) { return c.Add(ctx, key, value, opts) })
	if err != nil {
		hc.stats.recordError()
	}
	return status, err
}

// Replace stores value under key only if present.
func (hc *HashClient) Replace(ctx context.Context, key string, value any, opts StoreOptions) (StoreStatus, error) {
	return hc.storageOp(ctx, key, func(c *SingleClient) (StoreStatus, error) { return c.Replace(ctx, key, value, opts) })
}

// Cas stores value under key only if its CAS token still matches.
func (hc *HashClient) Cas(ctx context.Context, key string, value any, cas CASToken, opts StoreOptions) (StoreStatus, error) {
	return hc.storageOp(ctx, key, func(c *SingleClient) (StoreStatus, error) { return c.Cas(ctx, key, value, cas, opts) })
}

// Delete removes key from its elected server.
func (hc *HashClient) Delete(ctx context.Context, key string, noreply *bool) (DeleteResult, error) {
	hc.stats.recordDelete()
	result := NotDeleted
	err := hc.do(ctx, key, func() { result = NotDeleted }, func(c *SingleClient) error {
		var err error
		result, err = c.Delete(ctx, key, noreply)
		return err
	})
	if err != nil {
		hc.stats.recordError()
	}
	return result, err
}

// SetMany stores every key/value pair, batched per elected server, and
// returns the partition of failed keys (§4.4's set_many contract: the
// list of input keys that were *not* stored; an error mid-batch leaves
// succeeded/failed partitioning the keys seen so far).
func (hc *HashClient) SetMany(ctx context.Context, values map[string]any, opts StoreOptions) (failed []string, err error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	// Keys with no live server, or whose server is cooling down, are not
	// stored and count as failed.
	groups := hc.groupByServer(keys)
	routed := make(map[string]bool, len(keys))
	for _, serverKeys := range groups {
		for _, k := range serverKeys {
			routed[k] = true
		}
	}
	for _, k := range keys {
		if !routed[k] {
			failed = append(failed, k)
		}
	}

	for addr, serverKeys := range groups {
		pool := hc.poolFor(addr)
		if pool == nil {
			failed = append(failed, serverKeys...)
			continue
		}

		serverValues := make(map[string]any, len(serverKeys))
		for _, k := range serverKeys {
			serverValues[k] = values[k]
		}

		opErr := pool.Use(ctx, func(c *SingleClient) error {
			statuses, err := c.SetMany(ctx, serverValues, opts)
			for k := range serverValues {
				if st, ok := statuses[k]; !ok || !st.Stored() {
					failed = append(failed, k)
				}
			}
			return err
		})
		hc.recordOutcome(addr, opErr)
		if opErr != nil && !hc.config.IgnoreExc {
			return failed, opErr
		}
	}
	return failed, nil
}

// DeleteMany removes every key, batched per elected server.
func (hc *HashClient) DeleteMany(ctx context.Context, keys []string, noreply *bool) (map[string]DeleteResult, error) {
	results := make(map[string]DeleteResult, len(keys))
	for addr, serverKeys := range hc.groupByServer(keys) {
		pool := hc.poolFor(addr)
		if pool == nil {
			continue
		}
		opErr := pool.Use(ctx, func(c *SingleClient) error {
			partial, err := c.DeleteMany(ctx, serverKeys, noreply)
			for k, v := range partial {
				results[k] = v
			}
			return err
		})
		hc.recordOutcome(addr, opErr)
		if opErr != nil && !hc.config.IgnoreExc {
			return results, opErr
		}
	}
	return results, nil
}

// Incr atomically increments key on its elected server.
func (hc *HashClient) Incr(ctx context.Context, key string, delta uint64) (uint64, bool, error) {
	hc.stats.recordIncrement()
	var value uint64
	var found bool
	err := hc.do(ctx, key, func() {}, func(c *SingleClient) error {
		var err error
		value, found, err = c.Incr(ctx, key, delta)
		return err
	})
	if err != nil {
		hc.stats.recordError()
	}
	return value, found, err
}

// Decr atomically decrements key on its elected server.
func (hc *HashClient) Decr(ctx context.Context, key string, delta uint64) (uint64, bool, error) {
	var value uint64
	var found bool
	err := hc.do(ctx, key, func() {}, func(c *SingleClient) error {
		var err error
		value, found, err = c.Decr(ctx, key, delta)
		return err
	})
	return value, found, err
}

// Touch updates key's expiration on its elected server.
func (hc *HashClient) Touch(ctx context.Context, key string, expire int32, noreply *bool) (DeleteResult, error) {
	result := NotDeleted
	err := hc.do(ctx, key, func() { result = NotDeleted }, func(c *SingleClient) error {
		var err error
		result, err = c.Touch(ctx, key, expire, noreply)
		return err
	})
	return result, err
}

// Stats fetches statistics from every live server, keyed by server
// address.
func (hc *HashClient) Stats(ctx context.Context, subArg string) (map[string]map[string]string, error) {
	all := make(map[string]map[string]string)
	for _, addr := range hc.Servers() {
		pool := hc.poolFor(addr)
		if pool == nil {
			continue
		}
		var stats map[string]string
		opErr := pool.Use(ctx, func(c *SingleClient) error {
			var err error
			stats, err = c.Stats(ctx, subArg)
			return err
		})
		hc.recordOutcome(addr, opErr)
		if opErr != nil {
			if hc.config.IgnoreExc {
				continue
			}
			return all, opErr
		}
		all[addr] = stats
	}
	return all, nil
}

// FlushAll flushes every live server.
func (hc *HashClient) FlushAll(ctx context.Context, delay int32, noreply *bool) error {
	for _, addr := range hc.Servers() {
		pool := hc.poolFor(addr)
		if pool == nil {
			continue
		}
		opErr := pool.Use(ctx, func(c *SingleClient) error {
			return c.FlushAll(ctx, delay, noreply)
		})
		hc.recordOutcome(addr, opErr)
		if opErr != nil && !hc.config.IgnoreExc {
			return opErr
		}
	}
	return nil
}

// Version returns the version string of an arbitrary live server,
// useful as a cheap cluster reachability check ("ping").
func (hc *HashClient) Version(ctx context.Context) (string, error) {
	servers := hc.Servers()
	var pool *ConnectionPool
	var addr string
	if len(servers) > 0 {
		addr = servers[0]
		pool = hc.poolFor(addr)
	}
	if pool == nil {
		if hc.config.IgnoreExc {
			return "", nil
		}
		return "", ErrNoServer
	}

	var version string
	err := pool.Use(ctx, func(c *SingleClient) error {
		var err error
		version, err = c.Version(ctx)
		return err
	})
	hc.recordOutcome(addr, err)
	if err != nil && hc.config.IgnoreExc {
		return "", nil
	}
	return version, err
}

// Close closes every per-server pool.
func (hc *HashClient) Close() {
	hc.mu.Lock()
	pools := make([]*ConnectionPool, 0, len(hc.pools))
	for _, p := range hc.pools {
		pools = append(pools, p)
	}
	hc.mu.Unlock()

	for _, p := range pools {
		p.Clear()
	}
}
