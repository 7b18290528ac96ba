package p2p

import (
	"context"
	"fmt"

	"nhbchain/core/protocol"
	"nhbchain/topology"
)

// TopologyDialer resolves a push target from the topology carried by the
// record being pushed, using topology.Resolver for bare-hostname
// addresses. Unlike a dialer fixed to one topology, this supports a node
// participating in many concurrent transactions with different peer sets.
type TopologyDialer struct {
	Resolver topology.Resolver
}

// DialTarget implements Dialer.
func (d TopologyDialer) DialTarget(ctx context.Context, t protocol.Topology, peer protocol.Key) (string, error) {
	member, ok := t.Members[peer]
	if !ok || member.Address == "" {
		return "", fmt.Errorf("p2p: member %s has no direct address", peer)
	}
	endpoints, err := d.Resolver.Resolve(ctx, member.Address)
	if err != nil {
		return "", err
	}
	if len(endpoints) == 0 {
		return "", fmt.Errorf("p2p: member %s address %q did not resolve", peer, member.Address)
	}
	return endpoints[0], nil
}
