package settings

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "emc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	s, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:11211", s.Addr)
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, 5*time.Second, s.DialTimeout)
	assert.Zero(t, s.Timeout)
	assert.Equal(t, emc.DefaultPipelineFlushSize, s.PipelineFlushSize)
	assert.Equal(t, 50.0, s.Fill.Percentage)
	assert.Equal(t, 100, s.Fill.BatchSize)
	assert.Equal(t, []string{"set-noreply", "set", "get"}, s.Stress.Ops)
	assert.False(t, s.CircuitBreaker.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
addr: cache.internal:11311
workers: 16
timeout: 250ms
fill:
  percentage: 80
  verify: true
circuit_breaker:
  enabled: true
  timeout: 1s
`)

	loader := NewLoader()
	require.NoError(t, loader.ReadFile(path))
	s, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:11311", s.Addr)
	assert.Equal(t, 16, s.Workers)
	assert.Equal(t, 250*time.Millisecond, s.Timeout)
	assert.Equal(t, 80.0, s.Fill.Percentage)
	assert.True(t, s.Fill.Verify)
	assert.Equal(t, 100, s.Fill.BatchSize, "unset keys keep defaults")
	assert.True(t, s.CircuitBreaker.Enabled)
	assert.Equal(t, time.Second, s.CircuitBreaker.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	err := NewLoader().ReadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "workers: 16\nfill:\n  batch_size: 10\n")
	t.Setenv("EMC_WORKERS", "32")
	t.Setenv("EMC_FILL_BATCH_SIZE", "500")
	t.Setenv("EMC_STRESS_OPS", "get")

	loader := NewLoader()
	require.NoError(t, loader.ReadFile(path))
	s, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 32, s.Workers)
	assert.Equal(t, 500, s.Fill.BatchSize)
	assert.Equal(t, []string{"get"}, s.Stress.Ops)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	t.Setenv("EMC_ADDR", "from-env:11211")

	global := flag.NewFlagSet("emc", flag.ContinueOnError)
	global.String("addr", "", "")
	global.Int("workers", 0, "")
	require.NoError(t, global.Parse([]string{"-addr", "from-flag:11211"}))

	fill := flag.NewFlagSet("fill", flag.ContinueOnError)
	fill.Int("batch-size", 0, "")
	fill.Bool("verify", false, "")
	require.NoError(t, fill.Parse([]string{"-batch-size", "7", "-verify"}))

	loader := NewLoader()
	loader.BindFlags(global, "")
	loader.BindFlags(fill, "fill")
	s, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-flag:11211", s.Addr)
	assert.Equal(t, 4, s.Workers, "flags left unset do not apply")
	assert.Equal(t, 7, s.Fill.BatchSize)
	assert.True(t, s.Fill.Verify)
}

func TestValidate(t *testing.T) {
	valid, err := NewLoader().Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *Settings)
		errMsg string
	}{
		{"bad addr", func(s *Settings) { s.Addr = "localhost" }, "addr"},
		{"no workers", func(s *Settings) { s.Workers = 0 }, "workers must be positive"},
		{"fill above 100", func(s *Settings) { s.Fill.Percentage = 120 }, "fill.percentage"},
		{"value range", func(s *Settings) { s.Fill.MinValue = 2000 }, "exceeds fill.max_value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			require.ErrorContains(t, s.Validate(), tt.errMsg)
		})
	}
}

func TestClientConfig(t *testing.T) {
	s, err := NewLoader().Load()
	require.NoError(t, err)

	config := s.ClientConfig()
	assert.Equal(t, 5*time.Second, config.Dialer.Timeout)
	assert.Nil(t, config.NewCircuitBreaker)

	s.CircuitBreaker.Enabled = true
	config = s.ClientConfig()
	require.NotNil(t, config.NewCircuitBreaker)
	assert.Equal(t, "closed", config.NewCircuitBreaker("127.0.0.1:11211").State().String())
}

func TestLogger(t *testing.T) {
	s := Settings{LogLevel: "warn"}
	assert.Equal(t, logger.LevelWarn, s.Logger().Level)
	assert.False(t, s.Logger().Verbose)

	s.LogLevel = "trace"
	assert.True(t, s.Logger().Verbose)
}
