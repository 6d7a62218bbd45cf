package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost:5810", cfg.ServerAddr)
	assert.Equal(t, 5000*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomEnvVars(t *testing.T) {
	t.Setenv("NT4_SERVER_ADDR", "10.0.0.2:5810")
	t.Setenv("NT4_CONNECT_TIMEOUT_MS", "2000")
	t.Setenv("NT4_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:5810", cfg.ServerAddr)
	assert.Equal(t, 2000*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate_MissingServerAddr(t *testing.T) {
	cfg := &Config{ServerAddr: "", ConnectTimeout: time.Second}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NT4_SERVER_ADDR is required")
}

func TestValidate_NonPositiveTimeout(t *testing.T) {
	cfg := &Config{ServerAddr: "localhost:5810", ConnectTimeout: 0}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NT4_CONNECT_TIMEOUT_MS must be positive")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := &Config{ServerAddr: "localhost:5810", ConnectTimeout: time.Second}
	require.NoError(t, cfg.validate())
}

func TestGetEnv(t *testing.T) {
	t.Run("returns env value when set", func(t *testing.T) {
		t.Setenv("TEST_GET_ENV_KEY", "custom_value")
		assert.Equal(t, "custom_value", getEnv("TEST_GET_ENV_KEY", "fallback"))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_GET_ENV_KEY_MISSING")
		assert.Equal(t, "fallback", getEnv("TEST_GET_ENV_KEY_MISSING", "fallback"))
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("returns parsed int when valid", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY", "42")
		assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 99))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_INT_KEY_MISSING")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_MISSING", 99))
	})

	t.Run("returns fallback when invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY_BAD", "not-a-number")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_BAD", 99))
	})
}
