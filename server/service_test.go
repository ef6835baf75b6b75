package server

import (
	"context"
	"encoding/base64"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cmcintosh36/grumpy/cache"
	"github.com/cmcintosh36/grumpy/vm"
)

const factSource = `(fun fact (n i32) -> i32
  (cond (< n 1) 1 (* n (fact (- n 1)))))
% (seq (print (fact 3)) (fact 5))`

func field(s *structpb.Struct, name string) *structpb.Value {
	return s.GetFields()[name]
}

func TestCompileService_Compile(t *testing.T) {
	svc := New().Service()

	resp, err := svc.Compile(context.Background(), wrapperspb.String("% (+ 1 2)"))
	if err != nil {
		t.Fatal(err)
	}
	if !field(resp, "success").GetBoolValue() {
		t.Fatalf("compile failed: %v", resp)
	}
	if n := field(resp, "instructions").GetNumberValue(); n != 8 {
		t.Errorf("instructions = %v, want 8", n)
	}
	if !strings.Contains(field(resp, "listing").GetStringValue(), "Binary(+)") {
		t.Errorf("listing = %q", field(resp, "listing").GetStringValue())
	}
	if len(field(resp, "key").GetStringValue()) != 64 {
		t.Errorf("key = %q", field(resp, "key").GetStringValue())
	}

	data, err := base64.StdEncoding.DecodeString(field(resp, "module").GetStringValue())
	if err != nil {
		t.Fatal(err)
	}
	mod, err := vm.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	v, err := vm.NewMachine(mod).Run(context.Background())
	if err != nil || v != vm.Int(3) {
		t.Errorf("decoded module ran to %v, %v", v, err)
	}
}

func TestCompileService_Errors(t *testing.T) {
	svc := New().Service()
	ctx := context.Background()

	tests := []struct {
		name   string
		src    string
		kind   string
		line   float64
		column float64
	}{
		{"parse", "% (+ 1", "unexpected end of input", 1, 7},
		{"undefined", "%\n(f 1)", "undefined function", 2, 2},
		{"arity", "(fun f (x i32) -> i32 x) % (f)", "arity mismatch", 1, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Compile(ctx, wrapperspb.String(tt.src))
			if err != nil {
				t.Fatal(err)
			}
			if field(resp, "success").GetBoolValue() {
				t.Fatal("expected failure")
			}
			if got := field(resp, "kind").GetStringValue(); got != tt.kind {
				t.Errorf("kind = %q, want %q", got, tt.kind)
			}
			if field(resp, "line").GetNumberValue() != tt.line || field(resp, "column").GetNumberValue() != tt.column {
				t.Errorf("position = %v:%v, want %v:%v",
					field(resp, "line").GetNumberValue(), field(resp, "column").GetNumberValue(), tt.line, tt.column)
			}
		})
	}

	if _, err := svc.Compile(ctx, wrapperspb.String("")); err != errEmptySource {
		t.Errorf("empty source: %v", err)
	}
}

func TestCompileService_Run(t *testing.T) {
	svc := New(WithLimits(10_000, 0, 0)).Service()
	ctx := context.Background()

	resp, err := svc.Run(ctx, wrapperspb.String(factSource))
	if err != nil {
		t.Fatal(err)
	}
	if !field(resp, "success").GetBoolValue() {
		t.Fatalf("run failed: %v", resp)
	}
	if got := field(resp, "result").GetStringValue(); got != "120" {
		t.Errorf("result = %q, want 120", got)
	}
	if got := field(resp, "output").GetStringValue(); got != "6\n" {
		t.Errorf("output = %q, want %q", got, "6\n")
	}

	resp, err = svc.Run(ctx, wrapperspb.String("% (/ 1 0)"))
	if err != nil {
		t.Fatal(err)
	}
	if field(resp, "success").GetBoolValue() {
		t.Fatal("division by zero should fail")
	}
	if !strings.Contains(field(resp, "error").GetStringValue(), "division by zero") {
		t.Errorf("error = %q", field(resp, "error").GetStringValue())
	}
	if field(resp, "pc").GetNumberValue() != 6 {
		t.Errorf("pc = %v, want 6", field(resp, "pc").GetNumberValue())
	}

	loop := "(fun spin (n i32) -> i32 (spin n)) % (spin 0)"
	resp, err = svc.Run(ctx, wrapperspb.String(loop))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(field(resp, "error").GetStringValue(), "step limit") {
		t.Errorf("unbounded recursion: %v", resp)
	}
}

func TestCompileService_RunHeapLimit(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		src  string
	}{
		{"machine default", nil, "% (alloc 2147483647 0)"},
		{"configured", []Option{WithLimits(0, 0, 64)}, "% (alloc 100 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := New(tt.opts...).Service().Run(context.Background(), wrapperspb.String(tt.src))
			if err != nil {
				t.Fatal(err)
			}
			if field(resp, "success").GetBoolValue() {
				t.Fatal("oversized alloc should fail")
			}
			if !strings.Contains(field(resp, "error").GetStringValue(), "heap limit") {
				t.Errorf("error = %q", field(resp, "error").GetStringValue())
			}
		})
	}
}

func TestCompileService_Cache(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	svc := New(WithCache(c)).Service()
	ctx := context.Background()

	for i, wantCached := range []bool{false, true} {
		resp, err := svc.Run(ctx, wrapperspb.String(factSource))
		if err != nil {
			t.Fatal(err)
		}
		if got := field(resp, "cached").GetBoolValue(); got != wantCached {
			t.Errorf("run %d: cached = %v, want %v", i, got, wantCached)
		}
	}
}

func TestConnectTransport(t *testing.T) {
	ts := httptest.NewServer(New().Handler())
	defer ts.Close()

	compile, run := NewConnectClients(ts.Client(), ts.URL)
	ctx := context.Background()

	resp, err := run.CallUnary(ctx, connect.NewRequest(wrapperspb.String(factSource)))
	if err != nil {
		t.Fatal(err)
	}
	if got := field(resp.Msg, "result").GetStringValue(); got != "120" {
		t.Errorf("result = %q", got)
	}

	_, err = compile.CallUnary(ctx, connect.NewRequest(wrapperspb.String("")))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("empty source: %v, want InvalidArgument", err)
	}

	// JSON clients get the same service.
	resp, err = connect.NewClient[wrapperspb.StringValue, structpb.Struct](
		ts.Client(), ts.URL+CompileProcedure, connect.WithProtoJSON(),
	).CallUnary(ctx, connect.NewRequest(wrapperspb.String("% tt")))
	if err != nil {
		t.Fatal(err)
	}
	if !field(resp.Msg, "success").GetBoolValue() {
		t.Errorf("json compile: %v", resp.Msg)
	}
}

func TestGRPCTransport(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := New()
	go srv.GRPCServer().Serve(lis)
	defer srv.GRPCServer().Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	client := NewCompileClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Run(ctx, factSource)
	if err != nil {
		t.Fatal(err)
	}
	if got := field(resp, "result").GetStringValue(); got != "120" {
		t.Errorf("result = %q", got)
	}

	resp, err = client.Compile(ctx, "(fun f -> i32 1) % (f)")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(field(resp, "listing").GetStringValue(), "f:") {
		t.Errorf("listing = %q", field(resp, "listing").GetStringValue())
	}

	_, err = client.Compile(ctx, "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty source: %v, want InvalidArgument", err)
	}
}
