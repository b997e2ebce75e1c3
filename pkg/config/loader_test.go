package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/pkg/config"
)

type defaultsConfig struct {
	Window  time.Duration `env:"TEST_SWEEP_WINDOW_DEFAULT" envDefault:"24h"`
	Workers int           `env:"TEST_SWEEP_WORKERS_DEFAULT" envDefault:"4"`
	Enabled bool          `env:"TEST_SWEEP_ENABLED_DEFAULT" envDefault:"true"`
}

type successConfig struct {
	Window  time.Duration `env:"TEST_SWEEP_WINDOW" envDefault:"24h"`
	Workers int           `env:"TEST_SWEEP_WORKERS" envDefault:"4"`
}

type singletonConfig struct {
	Value string `env:"TEST_SINGLETON_VALUE" envDefault:"default"`
}

type requiredConfig struct {
	Secret string `env:"TEST_REQUIRED_SECRET,required"`
}

type fileConfig struct {
	TokenLimit int    `env:"TEST_FILE_TOKEN_LIMIT"`
	Plan       string `env:"TEST_FILE_PLAN"`
}

func TestLoad_Success(t *testing.T) {
	t.Setenv("TEST_SWEEP_WINDOW", "12h")
	t.Setenv("TEST_SWEEP_WORKERS", "8")

	var cfg successConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 12*time.Hour, cfg.Window)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoad_DefaultValues(t *testing.T) {
	os.Unsetenv("TEST_SWEEP_WINDOW_DEFAULT")
	os.Unsetenv("TEST_SWEEP_WORKERS_DEFAULT")
	os.Unsetenv("TEST_SWEEP_ENABLED_DEFAULT")

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 24*time.Hour, cfg.Window)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.Enabled)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("TEST_REQUIRED_SECRET")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_CachedPerType(t *testing.T) {
	config.ResetCache()
	t.Setenv("TEST_SINGLETON_VALUE", "first")

	var first singletonConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("TEST_SINGLETON_VALUE", "second")

	var second singletonConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)

	config.ResetCache()

	var third singletonConfig
	require.NoError(t, config.Load(&third))
	assert.Equal(t, "second", third.Value)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *successConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestLoadEnv(t *testing.T) {
	os.Unsetenv("TEST_FILE_TOKEN_LIMIT")
	os.Unsetenv("TEST_FILE_PLAN")
	t.Cleanup(func() {
		os.Unsetenv("TEST_FILE_TOKEN_LIMIT")
		os.Unsetenv("TEST_FILE_PLAN")
	})

	require.NoError(t, config.LoadEnv("testdata/.env.test"))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 250, cfg.TokenLimit)
	assert.Equal(t, "pro plan", cfg.Plan)
}

func TestLoadEnv_MissingFile(t *testing.T) {
	err := config.LoadEnv("testdata/does-not-exist.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestMustLoad_Panics(t *testing.T) {
	os.Unsetenv("TEST_REQUIRED_SECRET")
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
