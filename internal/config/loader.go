package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/steward-ai/steward/internal/types"
)

// Loader loads configuration from YAML files.
type Loader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperLoader implements Loader using Viper.
type viperLoader struct {
	validator Validator
}

// NewLoader creates a Loader backed by the given validator.
func NewLoader(validator Validator) Loader {
	return &viperLoader{validator: validator}
}

// Load loads configuration from the specified file path. Defaults fill any
// field the file omits. Returns an error if the file does not exist, cannot
// be parsed, or fails validation.
func (l *viperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to unmarshal config", err)
	}

	interpolateEnvVars(&cfg)

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path. If the
// file does not exist, the defaults are returned instead.
func (l *viperLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return l.Load(path)
}

// setDefaults registers the default values so partial config files merge
// against them.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("engine.run_timeout", defaults.Engine.RunTimeout)
	v.SetDefault("engine.plan_requests", defaults.Engine.PlanRequests)
	v.SetDefault("escalation.retry_threshold", defaults.Escalation.RetryThreshold)
	v.SetDefault("escalation.min_confidence", defaults.Escalation.MinConfidence)
	v.SetDefault("escalation.max_per_run", defaults.Escalation.MaxPerRun)
	v.SetDefault("escalation.max_per_session", defaults.Escalation.MaxPerSession)
	v.SetDefault("events.buffer_size", defaults.Events.BufferSize)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("session.enabled", defaults.Session.Enabled)
}

// envVarPattern matches ${VAR_NAME} references in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnvVars expands ${VAR_NAME} references in the string fields that
// commonly carry paths or endpoints. Unset variables leave the reference as-is.
func interpolateEnvVars(cfg *Config) {
	cfg.Session.ExportPath = interpolateString(cfg.Session.ExportPath)
	cfg.Tracing.Endpoint = interpolateString(cfg.Tracing.Endpoint)
}

// interpolateString replaces ${VAR_NAME} with the environment variable value.
func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}
