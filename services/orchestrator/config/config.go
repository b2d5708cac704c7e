// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads orchestrator settings from environment variables
// and an optional config file, with sane defaults for local development.
//
// Settings are read through viper: every key can be set in
// smartbot.yaml (searched in the working directory and /etc/smartbot) or
// overridden with a SMARTBOT_-prefixed environment variable, e.g.
// SMARTBOT_SERVER_PORT=8080 overrides server.port.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidPort is returned when server.port is out of range.
	ErrInvalidPort = errors.New("server.port must be between 1 and 65535")

	// ErrInvalidChunking is returned when the chunk overlap is not smaller
	// than the chunk size.
	ErrInvalidChunking = errors.New("knowledge.chunk_overlap must be smaller than knowledge.chunk_size")

	// ErrInvalidToolRounds is returned when the per-turn tool budget is
	// not positive.
	ErrInvalidToolRounds = errors.New("chat.max_tool_rounds must be positive")
)

// Config holds all orchestrator settings.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	LLM struct {
		// Backend selects the model provider: "anthropic" or "openai".
		Backend string `mapstructure:"backend"`
	} `mapstructure:"llm"`

	Chat struct {
		MaxToolRounds int `mapstructure:"max_tool_rounds"`
		TopChunks     int `mapstructure:"top_chunks"`
	} `mapstructure:"chat"`

	Knowledge struct {
		ChunkSize    int `mapstructure:"chunk_size"`
		ChunkOverlap int `mapstructure:"chunk_overlap"`
	} `mapstructure:"knowledge"`

	Prompts struct {
		Dir     string `mapstructure:"dir"`
		Version string `mapstructure:"version"`
	} `mapstructure:"prompts"`

	RateLimit struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Telemetry struct {
		// OTLPEndpoint is the gRPC collector address. Empty disables
		// trace export entirely.
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"telemetry"`
}

// Load reads configuration from file and environment.
//
// Missing config files are fine; defaults plus environment variables are a
// complete configuration. Fails only on an unreadable file or invalid
// values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 12210)
	v.SetDefault("llm.backend", "anthropic")
	v.SetDefault("chat.max_tool_rounds", 3)
	v.SetDefault("chat.top_chunks", 3)
	v.SetDefault("knowledge.chunk_size", 300)
	v.SetDefault("knowledge.chunk_overlap", 80)
	v.SetDefault("prompts.dir", "prompts")
	v.SetDefault("prompts.version", "v1_default")
	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("telemetry.otlp_endpoint", "")

	v.SetConfigName("smartbot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/smartbot")

	v.SetEnvPrefix("SMARTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Called by Load; exported for tests and for
// callers that construct a Config directly.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("%w: size %d, overlap %d",
			ErrInvalidChunking, c.Knowledge.ChunkSize, c.Knowledge.ChunkOverlap)
	}
	if c.Chat.MaxToolRounds < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidToolRounds, c.Chat.MaxToolRounds)
	}
	return nil
}
