package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given on the command line.
const DefaultPath = "server.yaml"

// Config holds the server settings. It is built once at startup and passed
// to server.Init; nothing reads it from a global.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Backlog    int    `yaml:"backlog"`
	BufferSize int    `yaml:"buffer_size"`
	MaxThreads int    `yaml:"max_threads"`
	SaveDir    string `yaml:"save_dir"`

	// Zero disables the per-read deadline.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// Zero waits for every running transfer on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Empty disables the health endpoint.
	HealthAddr string `yaml:"health_addr"`
	Debug      bool   `yaml:"debug"`
}

// fileLayout is the document structure, every setting lives under "server".
type fileLayout struct {
	Server Config `yaml:"server"`
}

func Default() *Config {
	return &Config{
		Host:       "0.0.0.0",
		Port:       5000,
		Backlog:    5,
		BufferSize: 4096,
		MaxThreads: 10,
		SaveDir:    "received_files",
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads path on top of the defaults. Keys missing in the file
// keep their default value.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	layout := fileLayout{Server: *Default()}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &layout.Server, nil
}

// ApplyEnv overrides settings from TCPFT_* environment variables.
func (c *Config) ApplyEnv() {
	c.Host = getEnv("TCPFT_HOST", c.Host)
	c.Port = getEnvInt("TCPFT_PORT", c.Port)
	c.SaveDir = getEnv("TCPFT_SAVE_DIR", c.SaveDir)
	c.MaxThreads = getEnvInt("TCPFT_MAX_THREADS", c.MaxThreads)
	c.Debug = getEnvBool("TCPFT_DEBUG", c.Debug)
}

// Validate ensures configuration is coherent
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("backlog must be positive, got %d", c.Backlog)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.MaxThreads <= 0 {
		return fmt.Errorf("max_threads must be positive, got %d", c.MaxThreads)
	}
	if c.SaveDir == "" {
		return fmt.Errorf("save_dir must not be empty")
	}
	if c.IdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
