// Package p2p provides the reference gossip-push transport for
// core/protocol's Storage.PushPeerRecord capability: a gRPC unary RPC
// secured by a per-session JWT, with a WebSocket fallback (ws_pusher.go)
// for peers behind networks that block gRPC.
package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"nhbchain/auth"
	"nhbchain/core/protocol"
)

// PushRequest/PushResponse are the gRPC wire messages for record gossip.
// They are plain Go structs marshaled by grpc's default codec configured
// for JSON (see NewGossipServer) rather than a generated .proto binding,
// since the wire body is already the protocol package's canonical JSON
// envelope (protocol.TrxRecord.MarshalWire) shared with every other
// transport and with storage.
type PushRequest struct {
	Record []byte `json:"record"`
}

type PushResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Dialer resolves a member key's address, within a given topology, to a
// dialable gRPC target; hosts typically back this with topology.Resolver.
type Dialer interface {
	DialTarget(ctx context.Context, t protocol.Topology, peer protocol.Key) (string, error)
}

// GRPCPusher implements storage.Pusher by issuing the PushRecord unary RPC
// against each peer's resolved gRPC endpoint, caching connections per
// target.
type GRPCPusher struct {
	Dialer Dialer
	Tokens auth.PeerTokenIssuer
	OurKey string

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCPusher constructs a pusher; call Close when done to release
// cached connections.
func NewGRPCPusher(dialer Dialer, tokens auth.PeerTokenIssuer, ourKey string) *GRPCPusher {
	return &GRPCPusher{Dialer: dialer, Tokens: tokens, OurKey: ourKey, conns: make(map[string]*grpc.ClientConn)}
}

func (p *GRPCPusher) connFor(target string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[target]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: dial %s: %w", target, err)
	}
	p.conns[target] = conn
	return conn, nil
}

// PushPeerRecord delivers record to peer over gRPC, implementing
// storage.Pusher (and therefore, transitively, the core's push capability).
func (p *GRPCPusher) PushPeerRecord(ctx context.Context, peer protocol.Key, record protocol.TrxRecord) error {
	target, err := p.Dialer.DialTarget(ctx, record.Topology, peer)
	if err != nil {
		return fmt.Errorf("p2p: resolve peer %s: %w", peer, err)
	}
	conn, err := p.connFor(target)
	if err != nil {
		return err
	}

	token, err := p.Tokens.Mint(p.OurKey, record.SessionCode)
	if err != nil {
		return fmt.Errorf("p2p: mint peer token: %w", err)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

	wire, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("p2p: encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var resp PushResponse
	if err := conn.Invoke(ctx, "/txprotocol.Gossip/PushRecord", &PushRequest{Record: wire}, &resp, grpc.CallContentSubtype("json")); err != nil {
		return fmt.Errorf("p2p: push to %s: %w", peer, err)
	}
	if !resp.Accepted {
		return fmt.Errorf("p2p: peer %s rejected record: %s", peer, resp.Error)
	}
	return nil
}

// Close releases every cached connection.
func (p *GRPCPusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for target, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, target)
	}
	return firstErr
}
