// Package server exposes the grumpy compiler over the network and to
// editors: a compile service reachable over Connect (HTTP/JSON) and native
// gRPC, and a stdio language server.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cmcintosh36/grumpy/cache"
)

var log = commonlog.GetLogger("grumpy.server")

// Server serves the compile service on an HTTP listener (Connect) and a
// gRPC listener.
type Server struct {
	service *CompileService
	mux     *http.ServeMux
	grpc    *grpc.Server
	http    *http.Server
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	cache    *cache.Cache
	maxDepth int
	maxSteps int
	maxStack int
	maxHeap  int
	timeout  time.Duration
}

// WithCache routes builds through a build cache.
func WithCache(c *cache.Cache) Option {
	return func(cfg *serverConfig) { cfg.cache = c }
}

// WithMaxDepth bounds parser nesting for submitted programs.
func WithMaxDepth(n int) Option {
	return func(cfg *serverConfig) { cfg.maxDepth = n }
}

// WithLimits bounds the instructions executed, the stack depth and the
// heap cells of each Run. Zero stack or heap leaves the machine default.
func WithLimits(maxSteps, maxStack, maxHeap int) Option {
	return func(cfg *serverConfig) {
		cfg.maxSteps = maxSteps
		cfg.maxStack = maxStack
		cfg.maxHeap = maxHeap
	}
}

// WithTimeout bounds the wall-clock time of each Run.
func WithTimeout(d time.Duration) Option {
	return func(cfg *serverConfig) { cfg.timeout = d }
}

// New creates a Server.
func New(opts ...Option) *Server {
	cfg := &serverConfig{
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	svc := NewCompileService(cfg)
	s := &Server{
		service: svc,
		mux:     http.NewServeMux(),
		grpc:    NewGRPCServer(svc),
	}

	interceptors := connect.WithInterceptors(loggingInterceptor())
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, svc.compileConnect, interceptors))
	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.runConnect, interceptors))

	return s
}

// Handler returns the Connect HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GRPCServer returns the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc
}

// Service returns the compile service.
func (s *Server) Service() *CompileService {
	return s.service
}

// ListenAndServe serves Connect on httpAddr and gRPC on grpcAddr until ctx
// is cancelled or either listener fails. An empty address disables that
// transport.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	var lis net.Listener
	if grpcAddr != "" {
		var err error
		if lis, err = net.Listen("tcp", grpcAddr); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if httpAddr != "" {
		s.http = &http.Server{Addr: httpAddr, Handler: s.mux}
		g.Go(func() error {
			log.Noticef("Connect (HTTP/JSON) listening on http://%s%s", httpAddr, CompileProcedure)
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if grpcAddr != "" {
		g.Go(func() error {
			log.Noticef("gRPC listening on %s", grpcAddr)
			return s.grpc.Serve(lis)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.Stop()
		return nil
	})

	return g.Wait()
}

// Stop shuts both transports down.
func (s *Server) Stop() {
	if s.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}
	s.grpc.GracefulStop()
}

// NewConnectClients returns Connect clients for Compile and Run at baseURL.
func NewConnectClients(httpClient connect.HTTPClient, baseURL string) (
	compile *connect.Client[wrapperspb.StringValue, structpb.Struct],
	run *connect.Client[wrapperspb.StringValue, structpb.Struct],
) {
	compile = connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+CompileProcedure)
	run = connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+RunProcedure)
	return compile, run
}
