package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. API_PORT
const EnvPrefix = "API"

// Config holds process-wide settings for the API server and the CLI
type Config struct {
	Name            string        // application name, used in logs and metric tags
	CORSOrigins     []string      // allowed origins, "*" for any
	CacheControl    string        // Cache-Control header for finished run resources
	Debug           bool          // forces DEBUG logging
	LogLevel        string        // DEBUG, INFO, WARN, ERROR
	Port            int           // API listen port
	DBPath          string        // sqlite run store
	OutputDir       string        // base directory for exported series
	SourceDir       string        // local item sources must live here, empty allows http(s) only
	TitilerEndpoint string        // default tiling service when a run omits one
	RequestTimeout  time.Duration // per crop request
	JobTimeout      time.Duration // per run
	MaxConcurrency  int           // default worker pool size
	CacheSize       int64         // crop cache capacity in bytes, 0 disables
	RateLimit       float64       // crop requests per second, 0 disables
	StatsdAddr      string        // statsd agent, empty disables metrics
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "cog-pipeline")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("cachecontrol", "public, max-age=3600")
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "pipeline.db")
	v.SetDefault("output_dir", "outputs")
	v.SetDefault("source_dir", "")
	v.SetDefault("titiler_endpoint", "https://api.cogeo.xyz")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("job_timeout", "10m")
	v.SetDefault("max_concurrency", 10)
	v.SetDefault("cache_size", 64<<20)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("statsd_addr", "")
}

// Load reads settings from API_* environment variables and, when path is set, a config file
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Name:            v.GetString("name"),
		CORSOrigins:     parseOrigins(v.GetString("cors_origins")),
		CacheControl:    v.GetString("cachecontrol"),
		Debug:           v.GetBool("debug"),
		LogLevel:        v.GetString("log_level"),
		Port:            v.GetInt("port"),
		DBPath:          v.GetString("db_path"),
		OutputDir:       v.GetString("output_dir"),
		SourceDir:       v.GetString("source_dir"),
		TitilerEndpoint: strings.TrimRight(v.GetString("titiler_endpoint"), "/"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		JobTimeout:      v.GetDuration("job_timeout"),
		MaxConcurrency:  v.GetInt("max_concurrency"),
		CacheSize:       v.GetInt64("cache_size"),
		RateLimit:       v.GetFloat64("rate_limit"),
		StatsdAddr:      v.GetString("statsd_addr"),
	}
	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive, got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	return nil
}

// parseOrigins splits a comma separated origin list
func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
