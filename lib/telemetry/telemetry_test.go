package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestSetupWithoutConfig(t *testing.T) {
	chdir(t, t.TempDir())

	config, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, Config{}, config)

	tel, err := SetupFromEnv(context.Background(), "sahibinden-test")
	require.NoError(t, err)
	require.False(t, tel.Enabled())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestLoadConfigSearchesParents(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigName), []byte(`{
		// exported to a local collector
		otlp: {
			traces: { http_endpoint: "http://localhost:4318/v1/traces" },
			metrics: { grpc_endpoint: "http://localhost:4317", headers: { "x-token": "t" } },
		},
	}`), 0o644))
	chdir(t, nested)

	config, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4318/v1/traces", config.Otlp.Traces.HttpEndpoint)
	require.Equal(t, "http://localhost:4317", config.Otlp.Metrics.GrpcEndpoint)
	require.Equal(t, map[string]string{"x-token": "t"}, config.Otlp.Metrics.Headers)
}
