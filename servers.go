package memcache

import (
	"context"
	"sync"
)

// Servers provides the list of memcache server addresses.
// Implementations must be safe for concurrent use.
type Servers interface {
	// List returns the current list of server addresses.
	// The returned slice must not be modified by the caller.
	List() []string
}

// StaticServers is a simple implementation that returns a fixed list of server addresses.
type StaticServers struct {
	addrs []string
}

// NewStaticServers creates a new StaticServers with the given addresses.
func NewStaticServers(addrs ...string) *StaticServers {
	return &StaticServers{addrs: addrs}
}

// List returns the list of server addresses.
func (s *StaticServers) List() []string {
	return s.addrs
}

// DiscoveredServers is a Servers implementation backed by an AWS
// ElastiCache configuration endpoint (§6.4): each Refresh re-runs
// `config get cluster` and replaces the node list.
type DiscoveredServers struct {
	cfgEndpoint ServerEndpoint
	cfgConfig   Config
	useVPC      bool

	mu    sync.RWMutex
	addrs []string
}

// NewDiscoveredServers constructs a DiscoveredServers against the
// cluster's configuration endpoint. Call Refresh at least once before
// using it; List returns an empty slice until then.
func NewDiscoveredServers(cfgEndpoint ServerEndpoint, cfgConfig Config, useVPC bool) *DiscoveredServers {
	return &DiscoveredServers{cfgEndpoint: cfgEndpoint, cfgConfig: cfgConfig, useVPC: useVPC}
}

// Refresh re-queries the configuration endpoint and replaces the node
// list.
func (s *DiscoveredServers) Refresh(ctx context.Context) error {
	nodes, err := DiscoverCluster(ctx, s.cfgEndpoint, s.cfgConfig)
	if err != nil {
		return err
	}

	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Endpoint(s.useVPC).String()
	}

	s.mu.Lock()
	s.addrs = addrs
	s.mu.Unlock()
	return nil
}

// List returns the most recently discovered server addresses.
func (s *DiscoveredServers) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.addrs))
	copy(out, s.addrs)
	return out
}
