package server

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// compileServer is the handler interface for grumpy.v1.CompileService.
type compileServer interface {
	Compile(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Run(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

var compileServiceDesc = grpc.ServiceDesc{
	ServiceName: CompileServiceName,
	HandlerType: (*compileServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grumpy/v1/compile.proto",
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, CompileProcedure, compileServer.Compile)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, RunProcedure, compileServer.Run)
}

func unary(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	method string,
	call func(compileServer, context.Context, *wrapperspb.StringValue) (*structpb.Struct, error),
) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		resp, err := call(srv.(compileServer), ctx, req.(*wrapperspb.StringValue))
		if err != nil {
			return nil, grpcError(err)
		}
		return resp, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	return interceptor(ctx, in, info, handler)
}

func grpcError(err error) error {
	if errors.Is(err, errEmptySource) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Errorf(codes.Internal, "compile service: %v", err)
}

// RegisterCompileService registers svc on a gRPC server.
func RegisterCompileService(s grpc.ServiceRegistrar, svc *CompileService) {
	s.RegisterService(&compileServiceDesc, svc)
}

// NewGRPCServer creates a gRPC server with panic recovery and request
// logging, serving svc.
func NewGRPCServer(svc *CompileService, opts ...grpc.ServerOption) *grpc.Server {
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(),
			grpcLoggingInterceptor(),
		),
	}
	serverOpts = append(serverOpts, opts...)

	server := grpc.NewServer(serverOpts...)
	RegisterCompileService(server, svc)
	return server
}

func recoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("gRPC panic recovered in %s: %v\n%s", info.FullMethod, r, debug.Stack())
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func grpcLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Infof("%s %s (%s)", info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// CompileClient calls a remote CompileService over gRPC.
type CompileClient struct {
	cc grpc.ClientConnInterface
}

// NewCompileClient wraps an established connection.
func NewCompileClient(cc grpc.ClientConnInterface) *CompileClient {
	return &CompileClient{cc: cc}
}

// Compile sends src for compilation.
func (c *CompileClient) Compile(ctx context.Context, src string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CompileProcedure, wrapperspb.String(src), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Run sends src for compilation and execution.
func (c *CompileClient) Run(ctx context.Context, src string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunProcedure, wrapperspb.String(src), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
