// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so a developer's local
// smartbot.yaml cannot leak into the result.
func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12210, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Backend)
	assert.Equal(t, 3, cfg.Chat.MaxToolRounds)
	assert.Equal(t, 3, cfg.Chat.TopChunks)
	assert.Equal(t, 300, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 80, cfg.Knowledge.ChunkOverlap)
	assert.Equal(t, "v1_default", cfg.Prompts.Version)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SMARTBOT_SERVER_PORT", "8080")
	t.Setenv("SMARTBOT_LLM_BACKEND", "openai")
	t.Setenv("SMARTBOT_CHAT_MAX_TOOL_ROUNDS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, 5, cfg.Chat.MaxToolRounds)
}

func TestLoadConfigFile(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile("smartbot.yaml", []byte(
		"server:\n  port: 9000\nknowledge:\n  chunk_size: 500\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Knowledge.ChunkSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, 80, cfg.Knowledge.ChunkOverlap)
}

func TestValidate(t *testing.T) {
	t.Run("invalid port", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("SMARTBOT_SERVER_PORT", "99999")
		_, err := Load()
		assert.True(t, errors.Is(err, ErrInvalidPort))
	})

	t.Run("overlap not smaller than chunk size", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("SMARTBOT_KNOWLEDGE_CHUNK_OVERLAP", "300")
		_, err := Load()
		assert.True(t, errors.Is(err, ErrInvalidChunking))
	})

	t.Run("non-positive tool rounds", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("SMARTBOT_CHAT_MAX_TOOL_ROUNDS", "0")
		_, err := Load()
		assert.True(t, errors.Is(err, ErrInvalidToolRounds))
	})
}
