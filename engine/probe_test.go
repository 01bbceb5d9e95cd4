package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnvironment(t *testing.T) {
	// Supported platforms cover every platform the test suite itself runs on.
	assert.NoError(t, ValidateEnvironment())
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		got, min string
		ok       bool
	}{
		{"3.8.4", "3.7.7", true},
		{"3.7.7", "3.7.7", true},
		{"3.7.6", "3.7.7", false},
		{"3.8.4", "", true},
		{"4.0", "3.9.9", true},
		{"2.12.30", "3.0.0", false},
		{"3.8.4-dev", "3.8.4", true},
	}

	for _, tt := range tests {
		err := CheckVersion(tt.got, tt.min)
		if tt.ok {
			assert.NoError(t, err, "%s vs %s", tt.got, tt.min)
		} else {
			assert.Error(t, err, "%s vs %s", tt.got, tt.min)
		}
	}
}

func TestCheckVersionMalformed(t *testing.T) {
	err := CheckVersion("garbage", "3.7.7")
	require.Error(t, err)

	loadErr := new(EngineLoadError)
	assert.True(t, errors.As(err, &loadErr))
}

func TestDefaultLoadUnavailable(t *testing.T) {
	_, err := Load()
	require.Error(t, err)

	loadErr := new(EngineLoadError)
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, loadErr.Error(), "no native engine")
}
