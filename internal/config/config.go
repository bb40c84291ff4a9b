// Package config loads the scorehider service configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cybergodev/scorehider"
	"github.com/cybergodev/scorehider/internal/logging"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Processor ProcessorConfig `koanf:"processor"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Settings  SettingsConfig  `koanf:"settings"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ProcessorConfig mirrors the document processing limits.
type ProcessorConfig struct {
	MaxInputSize      int           `koanf:"max_input_size"`
	MaxDepth          int           `koanf:"max_depth"`
	WorkerPoolSize    int           `koanf:"worker_pool_size"`
	CacheEntries      int           `koanf:"cache_entries"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
	ProcessingTimeout time.Duration `koanf:"processing_timeout"`
	Encoding          string        `koanf:"encoding"`
}

// SessionsConfig configures live page sessions.
type SessionsConfig struct {
	MaxSessions      int           `koanf:"max_sessions"`
	IdleTTL          time.Duration `koanf:"idle_ttl"`
	ScanInterval     time.Duration `koanf:"scan_interval"`
	FollowUpDelay    time.Duration `koanf:"follow_up_delay"`
	ReactionCooldown time.Duration `koanf:"reaction_cooldown"`
	EffectQueueSize  int           `koanf:"effect_queue_size"`
}

// SettingsConfig points at the range table and sound settings file.
type SettingsConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8484
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	defaults := logging.NewDefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Format
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = defaults.Fields
	}
	if cfg.Logging.Sampling == (logging.SamplingConfig{}) {
		cfg.Logging.Sampling = defaults.Sampling
	}

	p := &cfg.Processor
	if p.MaxInputSize == 0 {
		p.MaxInputSize = scorehider.DefaultMaxInputSize
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = scorehider.DefaultMaxDepth
	}
	if p.WorkerPoolSize == 0 {
		p.WorkerPoolSize = scorehider.DefaultWorkerPoolSize
	}
	if p.CacheEntries == 0 {
		p.CacheEntries = scorehider.DefaultMaxCacheEntries
	}
	if p.CacheTTL == 0 {
		p.CacheTTL = scorehider.DefaultCacheTTL
	}
	if p.ProcessingTimeout == 0 {
		p.ProcessingTimeout = scorehider.DefaultProcessingTimeout
	}

	s := &cfg.Sessions
	if s.MaxSessions == 0 {
		s.MaxSessions = 256
	}
	if s.IdleTTL == 0 {
		s.IdleTTL = 30 * time.Minute
	}
	if s.ScanInterval == 0 {
		s.ScanInterval = scorehider.DefaultScanInterval
	}
	if s.FollowUpDelay == 0 {
		s.FollowUpDelay = scorehider.DefaultFollowUpDelay
	}
	if s.ReactionCooldown == 0 {
		s.ReactionCooldown = scorehider.DefaultReactionCooldown
	}
	if s.EffectQueueSize == 0 {
		s.EffectQueueSize = scorehider.DefaultEffectQueueSize
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout cannot be negative"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Sessions.MaxSessions < 0 {
		errs = append(errs, errors.New("sessions.max_sessions cannot be negative"))
	}
	if c.Sessions.IdleTTL < 0 {
		errs = append(errs, errors.New("sessions.idle_ttl cannot be negative"))
	}
	if c.Settings.Watch && c.Settings.Path == "" {
		errs = append(errs, errors.New("settings.watch requires settings.path"))
	}
	if p, err := scorehider.New(c.ProcessorConfig()); err != nil {
		errs = append(errs, err)
	} else {
		_ = p.Close()
	}
	return errors.Join(errs...)
}

// ProcessorConfig converts the configuration into processor options.
// Settings, logger and metrics are left for the caller to attach.
func (c *Config) ProcessorConfig() scorehider.Config {
	cfg := scorehider.DefaultConfig()
	cfg.MaxInputSize = c.Processor.MaxInputSize
	cfg.MaxDepth = c.Processor.MaxDepth
	cfg.WorkerPoolSize = c.Processor.WorkerPoolSize
	cfg.MaxCacheEntries = c.Processor.CacheEntries
	cfg.CacheTTL = c.Processor.CacheTTL
	cfg.ProcessingTimeout = c.Processor.ProcessingTimeout
	cfg.Encoding = c.Processor.Encoding
	cfg.ScanInterval = c.Sessions.ScanInterval
	cfg.FollowUpDelay = c.Sessions.FollowUpDelay
	cfg.ReactionCooldown = c.Sessions.ReactionCooldown
	cfg.EffectQueueSize = c.Sessions.EffectQueueSize
	return cfg
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
