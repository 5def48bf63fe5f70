package tracing

import (
	"context"
	"testing"

	"github.com/l1jgo/worldstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	for _, cfg := range []config.TracingConfig{
		{Enabled: false, Endpoint: "http://collector:4318"},
		{Enabled: true},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupEnabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Enabled:     true,
		Endpoint:    "http://127.0.0.1:4318",
		ServiceName: "worldstore-test",
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	// Nothing was recorded, so shutdown has nothing to export.
	assert.NoError(t, shutdown(context.Background()))
}
