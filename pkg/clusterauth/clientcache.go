/*
 * pkg/clusterauth/clientcache.go
 *
 * C6: a concurrent cache of authenticated cluster clients keyed by bearer
 * token, with idle expiry, loader de-duplication, and an eviction hook that
 * always closes the evicted client exactly once.
 */

package clusterauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"k8s.io/client-go/kubernetes"

	"github.com/cryostat/openshift-auth-manager/internal/logging"
)

// ClusterClient is the cache's entry value: an authenticated client plus a
// close hook releasing whatever resources the factory allocated (typically
// none for a plain clientset, but the hook exists so richer factories -
// e.g. ones holding an open transport - have somewhere to release them).
type ClusterClient struct {
	Interface kubernetes.Interface
	closeFn   func()
	closeOnce sync.Once
}

// Close runs the client's release hook, if any. Safe to call on a zero
// value or multiple times: the hook runs at most once, even when both
// Invalidate and the eviction callback close the same client.
func (c *ClusterClient) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeFn()
		}
	})
}

// Scheduler launches run, the cache's janitor loop (expiry sweeps). The
// default schedules it onto a new goroutine this package owns; a host that
// wants the loop running under its own worker pool instead injects its own
// Scheduler via Config.ClientCacheScheduler. The Scheduler places only that
// loop: the loader runs on the goroutine that calls ClientCache.Get, and
// eviction callbacks run on goroutines ttlcache starts itself.
type Scheduler func(run func())

func defaultScheduler(run func()) {
	go run()
}

// ClientCache is C6's concurrent per-token client cache. NewClientCache
// returns it unstarted: the janitor loop (expiry sweeps, eviction
// callbacks) only runs once Start is invoked, so construction and
// scheduling are two separate, host-controllable steps rather than one
// constructor that reaches for "go" itself.
type ClientCache struct {
	cache   *ttlcache.Cache[string, *ClusterClient]
	factory ClientFactory
	logger  logging.Logger
}

// NewClientCache builds a ClientCache with the given idle expiry and
// loader, extended with any additional ttlcache options the host supplies -
// for example ttlcache.WithDisableTouchOnHit, or a custom clock for
// deterministic tests. The returned cache is not started; call Start.
func NewClientCache(idleExpiry time.Duration, factory ClientFactory, logger logging.Logger, opts ...ttlcache.Option[string, *ClusterClient]) *ClientCache {
	cc := &ClientCache{factory: factory, logger: logger}

	loader := ttlcache.LoaderFunc[string, *ClusterClient](
		func(c *ttlcache.Cache[string, *ClusterClient], token string) *ttlcache.Item[string, *ClusterClient] {
			client, err := cc.load(token)
			if err != nil {
				return nil
			}
			return c.Set(token, client, ttlcache.DefaultTTL)
		},
	)

	allOpts := append([]ttlcache.Option[string, *ClusterClient]{
		ttlcache.WithTTL[string, *ClusterClient](idleExpiry),
		ttlcache.WithLoader[string, *ClusterClient](ttlcache.NewSuppressedLoader[string, *ClusterClient](loader, nil)),
	}, opts...)

	cache := ttlcache.New[string, *ClusterClient](allOpts...)
	cc.cache = cache

	cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *ClusterClient]) {
		item.Value().Close()
	})

	return cc
}

// Start runs the cache's janitor loop until Close is called. It blocks, so
// callers run it via a Scheduler (NewManager defaults to launching it on a
// new goroutine; see Config.ClientCacheScheduler to control that placement
// instead).
func (cc *ClientCache) Start() {
	cc.cache.Start()
}

func (cc *ClientCache) load(token string) (*ClusterClient, error) {
	if cc.factory == nil {
		return nil, &InvalidArgumentError{Detail: "no client factory configured"}
	}
	raw, err := cc.factory(token)
	if err != nil {
		if cc.logger != nil {
			cc.logger.Warn(fmt.Sprintf("client factory failed: %v", err), "ClientCache")
		}
		return nil, &ClusterClientError{Cause: err}
	}
	return &ClusterClient{Interface: raw}, nil
}

// Get returns the cached client for token, loading it on miss. Concurrent
// Get calls for the same token observe at most one loader invocation,
// because the loader is wrapped in a ttlcache SuppressedLoader.
func (cc *ClientCache) Get(token string) (*ClusterClient, error) {
	if cc.factory == nil {
		return nil, &InvalidArgumentError{Detail: "no client factory configured"}
	}
	item := cc.cache.Get(token)
	if item == nil {
		return nil, &ClusterClientError{Cause: fmt.Errorf("no client available for token")}
	}
	return item.Value(), nil
}

// Invalidate evicts token's entry, if any, synchronously running its close
// hook before returning. Callers rely on this ordering to guarantee a
// caller never observes a cache entry after an authorization failure for
// that token has been recorded.
func (cc *ClientCache) Invalidate(token string) {
	item := cc.cache.Get(token,
		ttlcache.WithLoader[string, *ClusterClient](nil),
		ttlcache.WithDisableTouchOnHit[string, *ClusterClient](),
	)
	cc.cache.Delete(token)
	if item != nil {
		// The eviction callback ttlcache fires for Delete runs on its own
		// goroutine; closing here makes the hook run before Invalidate
		// returns, and ClusterClient.Close keeps it to a single run.
		item.Value().Close()
	}
}

// Close stops the cache's background janitor goroutine.
func (cc *ClientCache) Close() {
	cc.cache.Stop()
}
