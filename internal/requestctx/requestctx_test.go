package requestctx

import (
	"context"
	"testing"
)

func TestValuesRoundTrip(t *testing.T) {
	ctx := WithClientID(WithRequestID(context.Background(), "req-1"), "client-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
	if got := GetClientID(ctx); got != "client-1" {
		t.Fatalf("client id = %q", got)
	}
	if GetClientID(context.Background()) != "" {
		t.Fatal("expected empty client id on bare context")
	}
}
