package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := Tracer("test").Start(context.Background(), "unit")
	defer span.End()
	id := TraceID(ctx)
	assert.Len(t, id, 32)

	carrier := map[string]string{}
	otel.GetTextMapPropagator().Inject(ctx, mapCarrier(carrier))
	assert.Contains(t, carrier["traceparent"], id)
}

type mapCarrier map[string]string

func (m mapCarrier) Get(key string) string { return m[key] }

func (m mapCarrier) Set(key, value string) { m[key] = value }

func (m mapCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
