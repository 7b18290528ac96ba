package p2p

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nhbchain/auth"
	"nhbchain/core/protocol"
)

// WSPusher implements storage.Pusher over a plain WebSocket connection, for
// peers reachable only through networks that block raw gRPC (e.g. behind a
// browser-hosted light client or a restrictive corporate proxy). One
// connection per push keeps the implementation simple; hosts with high
// gossip volume should prefer GRPCPusher.
type WSPusher struct {
	Dialer Dialer
	Tokens auth.PeerTokenIssuer
	OurKey string
}

type wsPushEnvelope struct {
	Token  string `json:"token"`
	Record []byte `json:"record"`
}

type wsPushAck struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// PushPeerRecord delivers record to peer over a short-lived WebSocket
// connection.
func (p *WSPusher) PushPeerRecord(ctx context.Context, peer protocol.Key, record protocol.TrxRecord) error {
	target, err := p.Dialer.DialTarget(ctx, record.Topology, peer)
	if err != nil {
		return fmt.Errorf("p2p: resolve peer %s: %w", peer, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("p2p: dial ws %s: %w", target, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	token, err := p.Tokens.Mint(p.OurKey, record.SessionCode)
	if err != nil {
		return fmt.Errorf("p2p: mint peer token: %w", err)
	}
	wire, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("p2p: encode record: %w", err)
	}

	if err := wsjson.Write(ctx, conn, wsPushEnvelope{Token: token, Record: wire}); err != nil {
		return fmt.Errorf("p2p: write ws push: %w", err)
	}
	var ack wsPushAck
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		return fmt.Errorf("p2p: read ws ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("p2p: peer %s rejected record: %s", peer, ack.Error)
	}
	return nil
}

// WSGossipHandler is the server-side http.Handler accepting WSPusher
// connections, authenticating the token and handing accepted records to
// Ingest.
type WSGossipHandler struct {
	Ingest Ingest
	Tokens auth.PeerTokenIssuer
}

func (h *WSGossipHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	ctx := r.Context()
	var env wsPushEnvelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		return
	}

	record, err := protocol.UnmarshalWire(env.Record)
	if err != nil {
		_ = wsjson.Write(ctx, conn, wsPushAck{Accepted: false, Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "done")
		return
	}

	callerKey, err := h.Tokens.Verify(env.Token, record.SessionCode)
	if err != nil {
		_ = wsjson.Write(ctx, conn, wsPushAck{Accepted: false, Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "done")
		return
	}

	if _, err := h.Ingest(ctx, record, protocol.Key(callerKey)); err != nil {
		_ = wsjson.Write(ctx, conn, wsPushAck{Accepted: false, Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "done")
		return
	}

	_ = wsjson.Write(ctx, conn, wsPushAck{Accepted: true})
	conn.Close(websocket.StatusNormalClosure, "done")
}
