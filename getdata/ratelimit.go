package getdata

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/trasherdk/haveno/network"
)

// Responding to a get-data request runs the whole five-step truncation
// pipeline over every live payload; a peer that reconnects in a tight loop
// can turn that into a lot of wasted CPU. RateLimiter throttles response
// building the way a sync-request server in a sibling p2p stack does: one
// global token bucket bounding total concurrent work, plus a per-peer bucket
// so a single noisy peer can't starve the rest.
const (
	globalResponseRateLimit rate.Limit = 20
	globalResponseBurst                = 10
	peerResponseRateLimit   rate.Limit = 4
	peerResponseBurst                  = 3

	// maxThrottleDelay bounds how long a request waits for a token before
	// the caller should give up and drop the connection instead.
	maxThrottleDelay = 20 * time.Second

	// maxTrackedPeers bounds the peer-limiter LRU so a churn of distinct
	// short-lived connections can't grow it without bound.
	maxTrackedPeers = 1000
)

// RateLimiter gates get-data response building per connection.
type RateLimiter struct {
	global *rate.Limiter

	mu      sync.Mutex
	perPeer *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter constructs a RateLimiter with the module's default budgets.
func NewRateLimiter() *RateLimiter {
	perPeer, _ := lru.New[string, *rate.Limiter](maxTrackedPeers)
	return &RateLimiter{
		global:  rate.NewLimiter(globalResponseRateLimit, globalResponseBurst),
		perPeer: perPeer,
	}
}

// Wait blocks until both the global and the per-peer bucket have a token
// available, or ctx is done, or maxThrottleDelay has passed. On an error
// the caller should drop the connection rather than retry.
func (r *RateLimiter) Wait(ctx context.Context, conn network.Connection) error {
	ctx, cancel := context.WithTimeout(ctx, maxThrottleDelay)
	defer cancel()
	if err := r.global.Wait(ctx); err != nil {
		return err
	}
	return r.limiterFor(conn.PeerAddress()).Wait(ctx)
}

func (r *RateLimiter) limiterFor(addr string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.perPeer.Get(addr); ok {
		return l
	}
	l := rate.NewLimiter(peerResponseRateLimit, peerResponseBurst)
	r.perPeer.Add(addr, l)
	return l
}
