package gtls

import (
	"testing"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/engine/enginetest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineVersionProbe(t *testing.T) {
	rt := NewRuntime(enginetest.New(), RuntimeOptions{})

	version, err := rt.EngineVersion()
	require.NoError(t, err)
	assert.Equal(t, "3.8.4", version)
}

func TestEngineVersionBelowMinimum(t *testing.T) {
	rt := NewRuntime(enginetest.New(), RuntimeOptions{MinVersion: "9.9.9"})

	_, err := rt.EngineVersion()
	require.Error(t, err)

	loadErr := new(engine.EngineLoadError)
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "3.8.4", loadErr.Got)
	assert.Equal(t, "9.9.9", loadErr.Want)
}

func TestEngineVersionWithoutEngine(t *testing.T) {
	rt := NewRuntime(nil, RuntimeOptions{})

	_, err := rt.EngineVersion()
	require.Error(t, err)

	loadErr := new(engine.EngineLoadError)
	assert.True(t, errors.As(err, &loadErr))
}
