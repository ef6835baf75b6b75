package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cmcintosh36/grumpy/cache"
	"github.com/cmcintosh36/grumpy/compiler"
	"github.com/cmcintosh36/grumpy/vm"
)

// Service and procedure names, shared by the Connect and gRPC transports.
const (
	CompileServiceName = "grumpy.v1.CompileService"
	CompileProcedure   = "/" + CompileServiceName + "/Compile"
	RunProcedure       = "/" + CompileServiceName + "/Run"
)

var errEmptySource = errors.New("source is required")

// CompileService compiles and runs grumpy programs sent as source text.
// Requests are google.protobuf.StringValue; responses are
// google.protobuf.Struct. Front-end and runtime failures are reported in
// the response with success=false, not as RPC errors.
type CompileService struct {
	cache    *cache.Cache
	maxDepth int
	maxSteps int
	maxStack int
	maxHeap  int
	timeout  time.Duration
}

// NewCompileService creates a CompileService from the server configuration.
func NewCompileService(cfg *serverConfig) *CompileService {
	return &CompileService{
		cache:    cfg.cache,
		maxDepth: cfg.maxDepth,
		maxSteps: cfg.maxSteps,
		maxStack: cfg.maxStack,
		maxHeap:  cfg.maxHeap,
		timeout:  cfg.timeout,
	}
}

// Compile parses and generates code for the program in req. The response
// carries the listing, the base64 .gbc encoding and the content key.
func (s *CompileService) Compile(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	src := req.GetValue()
	if src == "" {
		return nil, errEmptySource
	}

	mod, key, cached, err := s.build(ctx, src)
	if err != nil {
		return failure(err)
	}

	data, err := vm.Marshal(mod)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"success":      true,
		"key":          key,
		"cached":       cached,
		"instructions": len(mod.Instrs),
		"listing":      mod.Disassemble(),
		"module":       base64.StdEncoding.EncodeToString(data),
	})
}

// Run compiles and executes the program in req, returning the result
// value and everything it printed.
func (s *CompileService) Run(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	src := req.GetValue()
	if src == "" {
		return nil, errEmptySource
	}

	mod, key, cached, err := s.build(ctx, src)
	if err != nil {
		return failure(err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var out bytes.Buffer
	opts := []vm.Option{vm.WithOutput(&out), vm.WithMaxSteps(s.maxSteps)}
	if s.maxStack > 0 {
		opts = append(opts, vm.WithMaxStack(s.maxStack))
	}
	if s.maxHeap > 0 {
		opts = append(opts, vm.WithMaxHeap(s.maxHeap))
	}
	start := time.Now()
	result, err := vm.NewMachine(mod, opts...).Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		fields := map[string]any{
			"success": false,
			"error":   err.Error(),
			"output":  out.String(),
		}
		var rerr *vm.RuntimeError
		if errors.As(err, &rerr) {
			fields["pc"] = rerr.PC
		}
		return structpb.NewStruct(fields)
	}

	log.Debugf("ran %s in %s", key[:12], elapsed)
	return structpb.NewStruct(map[string]any{
		"success": true,
		"result":  result.String(),
		"output":  out.String(),
		"key":     key,
		"cached":  cached,
		"elapsed": elapsed.String(),
	})
}

// build parses src and generates its module, going through the build
// cache when one is configured.
func (s *CompileService) build(ctx context.Context, src string) (mod *vm.Module, key string, cached bool, err error) {
	p := compiler.NewParser(src)
	if s.maxDepth > 0 {
		p.MaxDepth = s.maxDepth
	}
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, "", false, err
	}

	key = cache.Key(prog)
	if s.cache == nil {
		mod, err = compiler.Compile(prog)
		return mod, key, false, err
	}
	mod, cached, err = s.cache.Compile(ctx, prog)
	return mod, key, cached, err
}

// failure reports a front-end error in the response body, with its
// position when it has one.
func failure(err error) (*structpb.Struct, error) {
	fields := map[string]any{
		"success": false,
		"error":   err.Error(),
	}
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		fields["line"] = cerr.Pos.Line
		fields["column"] = cerr.Pos.Column
		fields["error"] = cerr.Message()
		fields["kind"] = cerr.Kind.Error()
	}
	return structpb.NewStruct(fields)
}

// ---------------------------------------------------------------------------
// Connect transport
// ---------------------------------------------------------------------------

func (s *CompileService) compileConnect(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	resp, err := s.Compile(ctx, req.Msg)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *CompileService) runConnect(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	resp, err := s.Run(ctx, req.Msg)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(resp), nil
}

func connectError(err error) error {
	if errors.Is(err, errEmptySource) {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewError(connect.CodeInternal, fmt.Errorf("compile service: %w", err))
}

// loggingInterceptor logs each Connect call with its duration.
func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			log.Infof("%s %s (%s)", req.Spec().Procedure, code, time.Since(start))
			return resp, err
		}
	}
}
