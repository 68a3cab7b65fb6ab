package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigYAML = `# tn project configuration
#
# Every key is optional; command-line flags take precedence.

# Default number of tasks run at the same time (-n).
processes: 1

# Log level for tn itself: debug, info, warn, error, off.
log_level: warn

# Also write JSON logs to .tn/logs/tn.log.
log_file: true

spawn:
  # Attempts to start a worker process before the task is reported as failed.
  retries: 3
  backoff: 200ms
  max_backoff: 5s
  # Maximum worker starts per second, 0 for no limit.
  rate: 0

shutdown:
  # What to do with running tasks on Ctrl-C: terminate or wait.
  policy: terminate
  grace: 5s
`

// Shutdown policies for in-flight tasks when a run is interrupted.
const (
	ShutdownTerminate = "terminate"
	ShutdownWait      = "wait"
)

// Duration decodes YAML strings like "250ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// SpawnConfig controls worker process creation.
type SpawnConfig struct {
	Retries    int      `yaml:"retries"`
	Backoff    Duration `yaml:"backoff"`
	MaxBackoff Duration `yaml:"max_backoff"`
	Rate       float64  `yaml:"rate"`
}

// ShutdownConfig controls interrupt handling.
type ShutdownConfig struct {
	Policy string   `yaml:"policy"`
	Grace  Duration `yaml:"grace"`
}

// Config models .tn.yaml.
type Config struct {
	Processes int            `yaml:"processes"`
	LogLevel  string         `yaml:"log_level"`
	LogFile   *bool          `yaml:"log_file"`
	Spawn     SpawnConfig    `yaml:"spawn"`
	Shutdown  ShutdownConfig `yaml:"shutdown"`
}

// DefaultConfig returns the configuration used when .tn.yaml is empty.
func DefaultConfig() Config {
	logFile := true
	return Config{
		Processes: 1,
		LogLevel:  "warn",
		LogFile:   &logFile,
		Spawn: SpawnConfig{
			Retries:    3,
			Backoff:    Duration(200 * time.Millisecond),
			MaxBackoff: Duration(5 * time.Second),
		},
		Shutdown: ShutdownConfig{
			Policy: ShutdownTerminate,
			Grace:  Duration(5 * time.Second),
		},
	}
}

// LoadConfig reads the marker file of the project at root. Missing keys keep
// their defaults.
func LoadConfig(root string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Paths{Root: root}.Marker())
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", MarkerFile, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("invalid %s: %w", MarkerFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid %s: %w", MarkerFile, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Processes < 1 {
		return fmt.Errorf("processes must be at least 1, got %d", c.Processes)
	}
	if c.Spawn.Retries < 0 {
		return fmt.Errorf("spawn.retries must not be negative, got %d", c.Spawn.Retries)
	}
	if c.Spawn.Rate < 0 {
		return fmt.Errorf("spawn.rate must not be negative, got %v", c.Spawn.Rate)
	}
	switch c.Shutdown.Policy {
	case ShutdownTerminate, ShutdownWait:
	default:
		return fmt.Errorf("shutdown.policy must be %q or %q, got %q", ShutdownTerminate, ShutdownWait, c.Shutdown.Policy)
	}
	return nil
}

// FileLogging reports whether the JSON log sink is enabled.
func (c Config) FileLogging() bool {
	return c.LogFile == nil || *c.LogFile
}
