package tracing

import (
	"context"
	"io"
	"testing"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNew_DisabledReturnsNoopTracer(t *testing.T) {
	m, err := New(types.TracingConfig{Enabled: false}, newTestLogger())
	require.NoError(t, err)
	require.NotNil(t, m.Tracer())

	_, span := m.Tracer().Start(context.Background(), "op")
	defer span.End()
	require.False(t, span.SpanContext().IsValid())
}

func TestNew_EnabledBuildsProvider(t *testing.T) {
	m, err := New(types.TracingConfig{
		Enabled:     true,
		Exporter:    "otlphttp",
		Endpoint:    "localhost:4318",
		ServiceName: "logvault-test",
	}, newTestLogger())
	require.NoError(t, err)
	require.NotNil(t, m.provider)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNew_UnknownExporterErrors(t *testing.T) {
	_, err := New(types.TracingConfig{Enabled: true, Exporter: "bogus"}, newTestLogger())
	require.Error(t, err)
}
