package settings

import (
	"flag"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: EMC_ADDR, EMC_FILL_PERCENTAGE...
const EnvPrefix = "EMC"

type Settings struct {
	Addr        string        `mapstructure:"addr"`
	Workers     int           `mapstructure:"workers"`
	Timeout     time.Duration `mapstructure:"timeout"`      // per check case and one-shot command, zero for none
	DialTimeout time.Duration `mapstructure:"dial_timeout"` // zero for none
	LogLevel    string        `mapstructure:"log_level"`
	Color       bool          `mapstructure:"color"`
	MetricsAddr string        `mapstructure:"metrics_addr"` // empty disables the exporter

	Pipeline          bool `mapstructure:"pipeline"`
	PipelineFlushSize int  `mapstructure:"pipeline_flush_size"`

	CircuitBreaker CircuitBreakerSettings `mapstructure:"circuit_breaker"`
	Fill           FillSettings           `mapstructure:"fill"`
	Stress         StressSettings         `mapstructure:"stress"`
}

type CircuitBreakerSettings struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests uint32        `mapstructure:"max_requests"` // allowed through when half-open
	Interval    time.Duration `mapstructure:"interval"`     // counts reset period when closed
	Timeout     time.Duration `mapstructure:"timeout"`      // open period before half-open
}

type FillSettings struct {
	Percentage float64 `mapstructure:"percentage"`
	BatchSize  int     `mapstructure:"batch_size"`
	KeySize    int     `mapstructure:"key_size"`
	MinValue   int     `mapstructure:"min_value"`
	MaxValue   int     `mapstructure:"max_value"`
	Verify     bool    `mapstructure:"verify"`
}

type StressSettings struct {
	Ops       []string `mapstructure:"ops"`
	Loops     int      `mapstructure:"loops"`
	ValueSize int      `mapstructure:"value_size"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:11211")
	v.SetDefault("workers", 4)
	v.SetDefault("timeout", 0)
	v.SetDefault("dial_timeout", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("color", true)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("pipeline", false)
	v.SetDefault("pipeline_flush_size", emc.DefaultPipelineFlushSize)

	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 10*time.Second)
	v.SetDefault("circuit_breaker.timeout", 5*time.Second)

	v.SetDefault("fill.percentage", 50.0)
	v.SetDefault("fill.batch_size", 100)
	v.SetDefault("fill.key_size", 10)
	v.SetDefault("fill.min_value", 100)
	v.SetDefault("fill.max_value", 1000)
	v.SetDefault("fill.verify", false)

	v.SetDefault("stress.ops", []string{"set-noreply", "set", "get"})
	v.SetDefault("stress.loops", 100000)
	v.SetDefault("stress.value_size", 3)
}

// Loader layers settings: defaults, then the config file, then EMC_*
// environment variables, then explicitly set flags.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// ReadFile loads a config file, its format inferred from the extension.
// An empty path is a no-op.
func (l *Loader) ReadFile(path string) error {
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// BindFlags applies the flags set on the command line. A flag named
// "batch-size" in section "fill" overrides fill.batch_size; an empty section
// addresses top-level keys. Flags left at their default are ignored, so they
// never mask the file or the environment.
func (l *Loader) BindFlags(fs *flag.FlagSet, section string) {
	fs.Visit(func(f *flag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if section != "" {
			key = section + "." + key
		}
		l.v.Set(key, f.Value.String())
	})
}

// Load decodes the layered settings and validates them.
func (l *Loader) Load() (Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the values no component would reject on its own.
func (s Settings) Validate() error {
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		return fmt.Errorf("addr %q: %w", s.Addr, err)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.Fill.Percentage <= 0 || s.Fill.Percentage > 100 {
		return fmt.Errorf("fill.percentage must be in (0, 100], got %v", s.Fill.Percentage)
	}
	if s.Fill.MinValue > s.Fill.MaxValue {
		return fmt.Errorf("fill.min_value %d exceeds fill.max_value %d", s.Fill.MinValue, s.Fill.MaxValue)
	}
	return nil
}

// ClientConfig builds the client configuration.
func (s Settings) ClientConfig() emc.Config {
	config := emc.Config{
		Dialer:            &net.Dialer{Timeout: s.DialTimeout},
		Pipeline:          s.Pipeline,
		PipelineFlushSize: s.PipelineFlushSize,
	}
	if s.CircuitBreaker.Enabled {
		cb := s.CircuitBreaker
		config.NewCircuitBreaker = emc.NewCircuitBreakerConfig(cb.MaxRequests, cb.Interval, cb.Timeout)
	}
	return config
}

// Logger builds the root logger.
func (s Settings) Logger() *logger.ColorLogger {
	l := logger.New(nil, logger.ParseLevel(s.LogLevel), s.Color)
	l.Verbose = strings.EqualFold(s.LogLevel, "trace")
	return l
}
