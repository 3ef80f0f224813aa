package xdump

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/render"
)

// Config contains all configuration options for the xdump engine
type Config struct {
	// CacheMaxSize is the maximum number of templates to cache. 0 disables caching.
	CacheMaxSize int
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
	// MaxRenderDepth bounds the nesting of embedded objects and call rules
	MaxRenderDepth int
	// StrictMode makes a visited object without a class rule fatal, whatever
	// the template root says
	StrictMode bool
	// Normalization overrides the normalize attribute of the template root
	Normalization string
	// Flags are the session variables tested by if/ifnot flag rules
	Flags []string
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:   100,
		CacheTTL:       0,
		LogLevel:       "info",
		MaxRenderDepth: 100,
		StrictMode:     false,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	// XDUMP_CACHE_MAX_SIZE
	if val := os.Getenv("XDUMP_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	// XDUMP_CACHE_TTL
	if val := os.Getenv("XDUMP_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	// XDUMP_LOG_LEVEL
	if val := os.Getenv("XDUMP_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	// XDUMP_MAX_RENDER_DEPTH
	if val := os.Getenv("XDUMP_MAX_RENDER_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			config.MaxRenderDepth = depth
		}
	}

	// XDUMP_STRICT_MODE
	if val := os.Getenv("XDUMP_STRICT_MODE"); val != "" {
		config.StrictMode = parseBool(val)
	}

	// XDUMP_NORMALIZATION
	if val := os.Getenv("XDUMP_NORMALIZATION"); val != "" {
		config.Normalization = val
	}

	// XDUMP_FLAGS, comma separated
	if val := os.Getenv("XDUMP_FLAGS"); val != "" {
		config.Flags = splitList(val)
	}

	return config
}

// fileConfig mirrors Config in the YAML layout accepted by LoadConfigFile.
type fileConfig struct {
	Cache struct {
		MaxSize *int   `yaml:"maxSize"`
		TTL     string `yaml:"ttl"`
	} `yaml:"cache"`
	LogLevel       string   `yaml:"logLevel"`
	MaxRenderDepth int      `yaml:"maxRenderDepth"`
	StrictMode     *bool    `yaml:"strictMode"`
	Normalization  string   `yaml:"normalization"`
	Flags          []string `yaml:"flags"`
}

// LoadConfigFile reads a YAML configuration file. Keys absent from the file
// keep their values from the environment or the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration over ConfigFromEnvironment.
func ParseConfig(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config := ConfigFromEnvironment()
	if fc.Cache.MaxSize != nil {
		config.CacheMaxSize = *fc.Cache.MaxSize
	}
	if fc.Cache.TTL != "" {
		ttl, err := time.ParseDuration(fc.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache ttl %q: %w", fc.Cache.TTL, err)
		}
		config.CacheTTL = ttl
	}
	if fc.LogLevel != "" {
		config.LogLevel = fc.LogLevel
	}
	if fc.MaxRenderDepth != 0 {
		config.MaxRenderDepth = fc.MaxRenderDepth
	}
	if fc.StrictMode != nil {
		config.StrictMode = *fc.StrictMode
	}
	if fc.Normalization != "" {
		config.Normalization = fc.Normalization
	}
	if len(fc.Flags) > 0 {
		config.Flags = append([]string(nil), fc.Flags...)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides
	config.Flags = append([]string(nil), overrides.Flags...)

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	if config.MaxRenderDepth == 0 {
		config.MaxRenderDepth = defaults.MaxRenderDepth
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.MaxRenderDepth <= 0 {
		return errors.New("max render depth must be positive")
	}

	if c.Normalization != "" {
		if _, err := render.ParseNormalization(c.Normalization); err != nil {
			return err
		}
	}

	return nil
}

// HasFlag reports whether a session variable flag is set.
func (c *Config) HasFlag(name string) bool {
	for _, f := range c.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	configCopy.Flags = append([]string(nil), globalConfig.Flags...)
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// outside the lock: the logger reads the config back
	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
