package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcachedKeyPrefix = "weathercache:"

// MemcachedStore implements Store on memcached. Not durable across a
// memcached restart, but the domain cache tolerates absent entries, so this
// backend trades durability for sharing the cache between processes.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated
// list; timeout and maxIdleConns use package defaults when zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := s.client.Get(memcachedKeyPrefix + key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (s *MemcachedStore) Set(ctx context.Context, key string, value []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := s.client.Set(&memcache.Item{
		Key:   memcachedKeyPrefix + key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("%w: memcached set %s: %v", ErrStorage, key, err)
	}
	return nil
}

func (s *MemcachedStore) Delete(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := s.client.Delete(memcachedKeyPrefix + key)
	if err != nil && err != memcache.ErrCacheMiss {
		return fmt.Errorf("%w: memcached delete %s: %v", ErrStorage, key, err)
	}
	return nil
}

// Ping checks if memcached is reachable. Used by the health endpoint.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
