package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,broken, =skip,tenant=a=b")
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %v", got)
	}
	if got["api-key"] != "secret" {
		t.Fatalf("unexpected api-key: %q", got["api-key"])
	}
	if got["tenant"] != "a=b" {
		t.Fatalf("unexpected tenant: %q", got["tenant"])
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestTracerIsUsableWithoutInit(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
