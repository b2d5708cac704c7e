// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, version, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, version+".txt"), []byte(text), 0o644))
}

func TestRender(t *testing.T) {
	t.Run("substitutes variables", func(t *testing.T) {
		dir := t.TempDir()
		writeTemplate(t, dir, "v1", "Hello {{name}}, welcome to {{place}}.")
		m := NewManager(dir, "v1")
		defer m.Close()

		got := m.Render("v1", map[string]string{"name": "Ada", "place": "the lab"})
		assert.Equal(t, "Hello Ada, welcome to the lab.", got)
	})

	t.Run("conditional block renders only when variable is non-empty", func(t *testing.T) {
		dir := t.TempDir()
		writeTemplate(t, dir, "v1", "Base.{{if extra}} Extra: {{extra}}{{/if}}")
		m := NewManager(dir, "v1")
		defer m.Close()

		assert.Equal(t, "Base. Extra: yes",
			m.Render("v1", map[string]string{"extra": "yes"}))
		assert.Equal(t, "Base.",
			m.Render("v1", map[string]string{"extra": ""}))
		assert.Equal(t, "Base.",
			m.Render("v1", map[string]string{"extra": "   "}), "blank counts as empty")
		assert.Equal(t, "Base.", m.Render("v1", nil), "unset counts as empty")
	})

	t.Run("unbound placeholders collapse to empty", func(t *testing.T) {
		dir := t.TempDir()
		writeTemplate(t, dir, "v1", "A {{missing}} B")
		m := NewManager(dir, "v1")
		defer m.Close()

		assert.Equal(t, "A  B", m.Render("v1", nil))
	})

	t.Run("missing version falls back to the built-in default", func(t *testing.T) {
		m := NewManager(t.TempDir(), "does-not-exist")
		defer m.Close()

		got := m.Render("", map[string]string{"knowledge_context": "[1] chunk text"})
		assert.Contains(t, got, "SmartBot")
		assert.Contains(t, got, "[1] chunk text")

		plain := m.Render("", nil)
		assert.NotContains(t, plain, "Reference material")
	})

	t.Run("empty version selects the active one", func(t *testing.T) {
		dir := t.TempDir()
		writeTemplate(t, dir, "v2", "Version two.")
		m := NewManager(dir, "v2")
		defer m.Close()

		assert.Equal(t, "Version two.", m.Render("", nil))
	})
}

func TestVersions(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "v2_concise", "b")
	writeTemplate(t, dir, "v1_default", "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))

	m := NewManager(dir, "v1_default")
	defer m.Close()

	assert.Equal(t, "v1_default", m.CurrentVersion())
	assert.Equal(t, []string{"v1_default", "v2_concise"}, m.ListVersions())
}

func TestManagerMissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent"), "v1")
	defer m.Close()

	assert.Nil(t, m.ListVersions())
	assert.NotEmpty(t, m.Render("", nil))
}
