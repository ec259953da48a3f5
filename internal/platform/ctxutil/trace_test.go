package ctxutil

import (
	"context"
	"testing"
)

func TestWithTraceDataRoundTrips(t *testing.T) {
	td := &TraceData{TraceID: "trace-1", RequestID: "req-1"}
	ctx := WithTraceData(context.Background(), td)

	got := GetTraceData(ctx)
	if got == nil {
		t.Fatalf("expected trace data to be retrievable")
	}
	if got.TraceID != "trace-1" || got.RequestID != "req-1" {
		t.Fatalf("unexpected trace data: %+v", got)
	}
}

func TestGetTraceDataMissingReturnsNil(t *testing.T) {
	if got := GetTraceData(context.Background()); got != nil {
		t.Fatalf("expected nil trace data on a bare context, got %+v", got)
	}
}
