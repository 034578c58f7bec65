package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup_WithoutEndpointIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown := Setup(context.Background(), "gas-auth-test", "", false, nil)
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("provider must not change without endpoint")
	}
}
