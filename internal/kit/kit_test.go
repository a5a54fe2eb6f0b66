package kit

import (
	"context"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var calls []string
	tag := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				calls = append(calls, name)
				return next(ctx, req)
			}
		}
	}

	ep := Chain(tag("outer"), tag("middle"), tag("inner"))(
		func(_ context.Context, req any) (any, error) {
			calls = append(calls, "endpoint")
			return req, nil
		})

	out, err := ep(context.Background(), "payload")
	if err != nil {
		t.Fatal(err)
	}
	if out != "payload" {
		t.Errorf("response: got %v", out)
	}

	want := []string{"outer", "middle", "inner", "endpoint"}
	if len(calls) != len(want) {
		t.Fatalf("calls: got %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestChain_Empty(t *testing.T) {
	ep := Chain()(func(_ context.Context, req any) (any, error) { return req, nil })
	out, err := ep(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if out != 7 {
		t.Errorf("got %v", out)
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	if got := GetTransport(ctx); got != "http" {
		t.Errorf("default transport: got %q", got)
	}
	ctx = WithTransport(ctx, "mcp")
	if got := GetTransport(ctx); got != "mcp" {
		t.Errorf("transport: got %q", got)
	}

	if got := GetRequestID(ctx); got != "" {
		t.Errorf("unset request id: got %q", got)
	}
	ctx = WithRequestID(ctx, "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("request id: got %q", got)
	}

	ctx = WithSessionID(ctx, "sess-9")
	if got := GetSessionID(ctx); got != "sess-9" {
		t.Errorf("session id: got %q", got)
	}
}
