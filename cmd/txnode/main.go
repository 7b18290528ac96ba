// Command txnode wires core/protocol's capability interfaces to their
// reference implementations and serves the gossip transport, mirroring
// cmd/nhb's load-config / open-storage / start-services shape.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"nhbchain/archival"
	"nhbchain/auth"
	"nhbchain/cmd/internal/passphrase"
	"nhbchain/config"
	"nhbchain/core/protocol"
	"nhbchain/crypto"
	observabilitylogging "nhbchain/observability/logging"
	observabilitymetrics "nhbchain/observability/metrics"
	observabilityotel "nhbchain/observability/otel"
	"nhbchain/p2p"
	"nhbchain/storage"
	"nhbchain/topology"
)

const validatorPassEnv = "TXNODE_VALIDATOR_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := os.Getenv("TXNODE_ENV")
	logger := observabilitylogging.Setup("txnode", env, observabilitylogging.FileSink{})

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	rootKey, err := loadRootKey(cfg)
	if err != nil {
		logger.Error("failed to load validator key", slog.Any("error", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metricsDriver := observabilitymetrics.NewDriver(reg)

	shutdownTelemetry, err := observabilityotel.Init(context.Background(), observabilityotel.Config{
		ServiceName: "txnode",
		Environment: env,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to init telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())
	tracer := observabilityotel.NewProtocolTracer("nhbchain/core/protocol")

	signer := crypto.NewSessionSigner(rootKey)
	ourKey, err := signer.GetOurKey(context.Background(), "startup")
	if err != nil {
		logger.Error("failed to derive startup key", slog.Any("error", err))
		os.Exit(1)
	}

	tokens := auth.PeerTokenIssuer{
		Secret:   []byte(cfg.Gossip.TokenSecret),
		Issuer:   "txnode",
		TokenTTL: cfg.Gossip.TokenTTL,
	}
	resolver := topology.Resolver{Nameserver: cfg.Gossip.Nameserver}

	dialer := p2p.TopologyDialer{Resolver: resolver}
	grpcPusher := p2p.NewGRPCPusher(dialer, tokens, string(ourKey))
	defer grpcPusher.Close()
	pusher := storage.Pusher(&p2p.PushLimiter{
		Pusher:        grpcPusher,
		RatePerSecond: cfg.Gossip.RatePerSecond,
		Burst:         cfg.Gossip.Burst,
	})

	store, closeStore, err := openStorage(cfg, pusher)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	var sink archival.Sink
	if cfg.ArchivalPath != "" {
		fileSink, err := archival.Open(cfg.ArchivalPath, protocol.RealClock{})
		if err != nil {
			logger.Error("failed to open archival sink", slog.Any("error", err))
			os.Exit(1)
		}
		defer fileSink.Close()
		sink = fileSink
	}

	decider := &fixedDecider{approve: true}
	driver := protocol.Driver{
		Storage:   store,
		Signer:    signer,
		Decider:   decider,
		Validator: protocol.Validator{Config: cfg.ProtocolConfig(), Clock: protocol.RealClock{}},
		Evaluator: protocol.RoleEvaluator{Signer: signer},
		Clock:     protocol.RealClock{},
		Metrics:   metricsDriver,
		Tracer:    tracer,
		Archiver:  sink,
	}

	ingest := func(ctx context.Context, record protocol.TrxRecord, fromKey protocol.Key) (protocol.TrxRecord, error) {
		return driver.Update(ctx, record, fromKey)
	}

	gossipServer := &p2p.GossipServer{Ingest: ingest, Tokens: tokens, Logger: logger}
	grpcServer := grpc.NewServer(p2p.ServerOptions()...)
	gossipServer.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Gossip.ListenAddress)
	if err != nil {
		logger.Error("failed to listen for gossip", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		logger.Info("gossip gRPC listening", slog.String("addr", cfg.Gossip.ListenAddress))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gossip gRPC server stopped", slog.Any("error", err))
		}
	}()

	wsHandler := &p2p.WSGossipHandler{Ingest: ingest, Tokens: tokens}
	mux := http.NewServeMux()
	mux.Handle("/gossip", wsHandler)
	httpServer := &http.Server{Addr: cfg.Gossip.WSListenAddress, Handler: mux}
	go func() {
		logger.Info("gossip websocket listening", slog.String("addr", cfg.Gossip.WSListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gossip websocket server stopped", slog.Any("error", err))
		}
	}()

	debugRouter := chi.NewRouter()
	debugRouter.Method(http.MethodGet, "/healthz", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}), "txnode.healthz"))
	debugRouter.Method(http.MethodGet, "/metrics", otelhttp.NewHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), "txnode.metrics"))
	debugServer := &http.Server{Addr: cfg.RPCAddress, Handler: debugRouter}
	go func() {
		logger.Info("debug http listening", slog.String("addr", cfg.RPCAddress))
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("debug http server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("txnode started", slog.String("key", string(ourKey)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	grpcServer.GracefulStop()
	_ = httpServer.Close()
	_ = debugServer.Close()
}

// fixedDecider is the reference Decider: it approves every promise/commit
// decision, standing in for a host-specific compliance or business-rule
// check. Real deployments replace this with a Decider backed by whatever
// approval workflow the host requires.
type fixedDecider struct {
	approve bool
}

func (d *fixedDecider) ShouldPromise(context.Context, protocol.TrxRecord) (bool, error) {
	return d.approve, nil
}

func (d *fixedDecider) ShouldCommit(context.Context, protocol.TrxRecord) (bool, error) {
	return d.approve, nil
}

func loadRootKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	if cfg.KeystorePath != "" {
		passSource := passphrase.NewSource(validatorPassEnv)
		pass := cfg.KeystorePassphrase
		if pass == "" {
			resolved, err := passSource.Get()
			if err != nil {
				return nil, err
			}
			pass = resolved
		}
		return crypto.LoadFromKeystore(cfg.KeystorePath, pass)
	}
	if cfg.ValidatorKey != "" {
		raw, err := hex.DecodeString(cfg.ValidatorKey)
		if err != nil {
			return nil, fmt.Errorf("txnode: decode validator key: %w", err)
		}
		return crypto.PrivateKeyFromBytes(raw)
	}
	return nil, fmt.Errorf("txnode: config has neither KeystorePath nor ValidatorKey set")
}

func openStorage(cfg *config.Config, pusher storage.Pusher) (protocol.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageLevelDB:
		db, err := storage.NewLevelDB(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("txnode: open leveldb: %w", err)
		}
		return storage.NewKVStore(db, pusher), func() { db.Close() }, nil
	case config.StoragePostgres:
		s, err := storage.OpenPostgresStore(cfg.Storage.DSN, pusher)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case config.StorageSQLite:
		s, err := storage.OpenSQLiteStore(cfg.Storage.Path, pusher)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return storage.NewKVStore(storage.NewMemDB(), pusher), func() {}, nil
	}
}
