package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	rec := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "chunkgen-test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := Tracer().Start(context.Background(), "generate")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "generate", ended[0].Name())
	require.Equal(t, InstrumentationName, ended[0].InstrumentationScope().Name)

	var service string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	require.Equal(t, "chunkgen-test", service)
}
