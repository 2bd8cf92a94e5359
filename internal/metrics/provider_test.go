package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)
	assert.NotNil(t, provider.MeterProvider())
	assert.NotNil(t, provider.registry)

	t.Run("empty-namespace", func(t *testing.T) {
		provider, err := NewProvider("")
		require.NoError(t, err)
		assert.NotNil(t, provider)
	})
}

func TestProvider_HandlerIncludesRuntimeMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	body := scrape(t, provider)
	assert.Contains(t, body, "go_goroutines")
}

func TestProvider_Shutdown(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(context.Background()))

	var empty Provider
	assert.NoError(t, empty.Shutdown(context.Background()))
}
