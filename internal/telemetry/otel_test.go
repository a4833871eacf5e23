package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup("svc", "none", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupUnknownMode(t *testing.T) {
	_, err := Setup("svc", "jaeger", nil)
	assert.Error(t, err)
}

func TestSetupStdoutWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup("shop-test", "stdout", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "orders.SubmitOrder")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "orders.SubmitOrder")
	assert.Contains(t, buf.String(), "shop-test")
}
