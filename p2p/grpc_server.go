package p2p

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"nhbchain/auth"
	"nhbchain/core/protocol"
	observabilitylogging "nhbchain/observability/logging"
)

// Ingest is the callback invoked for every record received over gossip; it
// is expected to be core/protocol.Driver.Update bound to the receiving
// node's capabilities.
type Ingest func(ctx context.Context, record protocol.TrxRecord, fromKey protocol.Key) (protocol.TrxRecord, error)

// GossipServer implements the "/txprotocol.Gossip/PushRecord" RPC the
// GRPCPusher calls, authenticating callers via a peer JWT and handing
// accepted records to Ingest.
type GossipServer struct {
	Ingest Ingest
	Tokens auth.PeerTokenIssuer
	// Logger, when set, receives one structured entry per rejected push,
	// with Member.AgentSecret masked (see observability/logging.RecordAttrs).
	Logger *slog.Logger
}

// Register attaches the gossip service to srv using the JSON codec
// configured in grpc_codec.go.
func (s *GossipServer) Register(srv *grpc.Server) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "txprotocol.Gossip",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "PushRecord", Handler: s.pushRecordHandler},
		},
		Metadata: "txprotocol/gossip.proto",
	}, s)
}

func (s *GossipServer) pushRecordHandler(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PushRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.handlePushRecord(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/txprotocol.Gossip/PushRecord"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.handlePushRecord(ctx, req.(*PushRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func (s *GossipServer) handlePushRecord(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	record, err := protocol.UnmarshalWire(req.Record)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode record: %v", err)
	}

	callerKey, err := s.authenticate(ctx, record.SessionCode)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "%v", err)
	}

	if _, err := s.Ingest(ctx, record, protocol.Key(callerKey)); err != nil {
		if s.Logger != nil {
			attrs := append(observabilitylogging.RecordAttrs(record), slog.Any("error", err))
			s.Logger.Warn("rejected pushed record", attrs...)
		}
		return &PushResponse{Accepted: false, Error: err.Error()}, nil
	}
	return &PushResponse{Accepted: true}, nil
}

func (s *GossipServer) authenticate(ctx context.Context, sessionCode string) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", fmt.Errorf("p2p: missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", fmt.Errorf("p2p: missing authorization header")
	}
	const prefix = "Bearer "
	raw := values[0]
	if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
		return "", fmt.Errorf("p2p: malformed authorization header")
	}
	return s.Tokens.Verify(raw[len(prefix):], sessionCode)
}

// ServerOptions returns the grpc.ServerOption set (OTel instrumentation)
// every GossipServer listener should use.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}
}
