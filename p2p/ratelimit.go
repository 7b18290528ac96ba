package p2p

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"nhbchain/core/protocol"
)

// Pusher is the minimal interface PushLimiter wraps; GRPCPusher and
// WSPusher both satisfy it, as does storage.Pusher's PushPeerRecord shape.
type Pusher interface {
	PushPeerRecord(ctx context.Context, peer protocol.Key, record protocol.TrxRecord) error
}

// PushLimiter throttles outbound gossip pushes per peer so a burst of
// rapidly-arriving updates for the same transaction cannot flood a slow
// peer with redundant pushes. Each peer gets its own token bucket, lazily
// created on first use.
type PushLimiter struct {
	Pusher        Pusher
	RatePerSecond float64
	Burst         int

	mu       sync.Mutex
	limiters map[protocol.Key]*rate.Limiter
}

func (p *PushLimiter) limiterFor(peer protocol.Key) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limiters == nil {
		p.limiters = make(map[protocol.Key]*rate.Limiter)
	}
	if l, ok := p.limiters[peer]; ok {
		return l
	}
	burst := p.Burst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(p.RatePerSecond), burst)
	p.limiters[peer] = l
	return l
}

// PushPeerRecord blocks until the peer's rate limiter admits the push (or
// ctx is done), then delegates to the wrapped Pusher.
func (p *PushLimiter) PushPeerRecord(ctx context.Context, peer protocol.Key, record protocol.TrxRecord) error {
	if err := p.limiterFor(peer).Wait(ctx); err != nil {
		return fmt.Errorf("p2p: rate limit wait for %s: %w", peer, err)
	}
	return p.Pusher.PushPeerRecord(ctx, peer, record)
}
