// Package app wires the engine runtime: the lobby, the seat endpoint and the
// observer gRPC service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/rulecore/internal/platform/timeouts"
	"github.com/louisbranch/rulecore/internal/services/engine/api/grpc/observer"
	"github.com/louisbranch/rulecore/internal/services/engine/api/ws"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/search"
	"github.com/louisbranch/rulecore/internal/services/engine/game"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
	"github.com/louisbranch/rulecore/internal/services/engine/seat"
	enginesqlite "github.com/louisbranch/rulecore/internal/services/engine/storage/sqlite"
)

// Config holds the runtime settings of an engine server.
type Config struct {
	GRPCAddr string
	HTTPAddr string
	// HistoryPath is the sqlite history database. Empty keeps history in
	// memory.
	HistoryPath     string
	Grants          seat.Config
	DecisionTimeout time.Duration
	AILimits        *search.Limits
}

// Server hosts the engine HTTP and gRPC listeners.
type Server struct {
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpListener net.Listener
	httpServer   *http.Server
	lobby        *Lobby
	store        *enginesqlite.Store
	stopGames    context.CancelFunc
}

// New creates a configured engine server.
func New(ctx context.Context, cfg Config) (*Server, error) {
	var store history.Store = history.NewMemory()
	var sqliteStore *enginesqlite.Store
	if path := strings.TrimSpace(cfg.HistoryPath); path != "" {
		opened, err := openHistoryStore(ctx, path)
		if err != nil {
			return nil, err
		}
		sqliteStore = opened
		store = opened
	}

	enumerators := decision.NewEnumerators()
	if err := duel.RegisterEnumerators(enumerators); err != nil {
		closeStore(sqliteStore)
		return nil, fmt.Errorf("register enumerators: %w", err)
	}

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		closeStore(sqliteStore)
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcListener.Close()
		closeStore(sqliteStore)
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	games := game.NewGames()
	gamesCtx, stopGames := context.WithCancel(context.Background())
	lobby := NewLobby(gamesCtx, games, store, enumerators, cfg.AILimits)

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	observer.Register(grpcServer, observer.NewService(games, store))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(observer.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	mux := http.NewServeMux()
	mux.Handle("/games", lobby)
	mux.Handle("/", ws.NewHandler(ws.Config{
		Games:           games,
		Enumerators:     enumerators,
		Grants:          cfg.Grants,
		Observer:        duel.ObserverFor,
		DecisionTimeout: cfg.DecisionTimeout,
	}))
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		grpcListener: grpcListener,
		grpcServer:   grpcServer,
		health:       healthServer,
		httpListener: httpListener,
		httpServer:   httpServer,
		lobby:        lobby,
		store:        sqliteStore,
		stopGames:    stopGames,
	}, nil
}

// GRPCAddr returns the gRPC listener address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Lobby returns the game lobby.
func (s *Server) Lobby() *Lobby { return s.lobby }

// Run creates and serves an engine server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs both listeners until ctx ends or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("engine gRPC listening at %v", s.grpcListener.Addr())
	log.Printf("engine HTTP listening at %v", s.httpListener.Addr())
	serveErr := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("serve gRPC: %w", err)
			return
		}
		serveErr <- nil
	}()
	go func() {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve HTTP: %w", err)
			return
		}
		serveErr <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	s.health.Shutdown()
	s.stopGames()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("engine HTTP shutdown: %v", shutdownErr)
	}
	s.grpcServer.GracefulStop()
	s.lobby.Wait()
	return err
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.stopGames != nil {
		s.stopGames()
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	closeStore(s.store)
	s.store = nil
}

func openHistoryStore(ctx context.Context, path string) (*enginesqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := enginesqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open history sqlite store: %w", err)
	}
	return store, nil
}

func closeStore(store *enginesqlite.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("close history store: %v", err)
	}
}
