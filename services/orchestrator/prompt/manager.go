// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt manages versioned system-prompt templates.
//
// Templates are plain text files named <version>.txt in a prompts
// directory. The syntax supports {{variable}} substitution and
// {{if variable}}...{{/if}} conditional blocks that render only when the
// variable is non-empty. A built-in default template is used when the
// requested version file does not exist, so the service never starts
// without a system prompt.
package prompt

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// defaultTemplate is the built-in fallback prompt.
const defaultTemplate = `You are SmartBot, a helpful assistant for multi-turn conversations.
Answer concisely and professionally. Use the available tools when a question
calls for live data or calculation.

{{if knowledge_context}}
Reference material retrieved for this question. Prefer it over your own
recollection when they conflict:
{{knowledge_context}}
{{/if}}`

// conditionalPattern matches {{if var}}...{{/if}} blocks, across newlines.
var conditionalPattern = regexp.MustCompile(`(?s)\{\{if\s+(\w+)\}\}(.*?)\{\{/if\}\}`)

// Manager loads, caches, and renders prompt templates.
//
// # Thread Safety
//
// Safe for concurrent use. An fsnotify watcher invalidates the template
// cache when files under the prompts directory change, so edits take
// effect without a restart.
type Manager struct {
	dir     string
	version string

	mu    sync.RWMutex
	cache map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a manager rooted at dir with the given active version.
// A missing directory is not an error: every render falls back to the
// built-in default template.
func NewManager(dir, version string) *Manager {
	m := &Manager{
		dir:     dir,
		version: version,
		cache:   make(map[string]string),
		done:    make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Prompt watcher unavailable, template edits need a restart", "error", err)
		return m
	}
	if err := watcher.Add(dir); err != nil {
		slog.Warn("Prompt directory not watchable", "dir", dir, "error", err)
		_ = watcher.Close()
		return m
	}
	m.watcher = watcher
	go m.watch()
	return m
}

// watch drops cached templates whenever the prompts directory changes.
func (m *Manager) watch() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				m.mu.Lock()
				m.cache = make(map[string]string)
				m.mu.Unlock()
				slog.Info("Prompt templates changed, cache invalidated", "file", event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Prompt watcher error", "error", err)
		case <-m.done:
			return
		}
	}
}

// Close stops the watcher goroutine.
func (m *Manager) Close() {
	close(m.done)
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
}

// CurrentVersion returns the active template version.
func (m *Manager) CurrentVersion() string {
	return m.version
}

// ListVersions returns the available template versions, sorted.
func (m *Manager) ListVersions() []string {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}
	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, ".txt"))
	}
	sort.Strings(versions)
	return versions
}

// Template returns the raw template text for a version, or the built-in
// default when the file is missing. An empty version selects the active one.
func (m *Manager) Template(version string) string {
	if version == "" {
		version = m.version
	}

	m.mu.RLock()
	cached, ok := m.cache[version]
	m.mu.RUnlock()
	if ok {
		return cached
	}

	text := defaultTemplate
	path := filepath.Join(m.dir, version+".txt")
	if content, err := os.ReadFile(path); err == nil {
		text = string(content)
	} else {
		slog.Debug("Prompt template not found, using built-in default", "version", version)
	}

	m.mu.Lock()
	m.cache[version] = text
	m.mu.Unlock()
	return text
}

// Render produces the system prompt for a version, substituting vars.
//
// Conditional blocks render only when their variable has a non-blank value;
// inside a rendered block and in the remaining text, {{name}} placeholders
// are replaced with the variable values. Unknown placeholders collapse to
// the empty string.
func (m *Manager) Render(version string, vars map[string]string) string {
	text := m.Template(version)

	text = conditionalPattern.ReplaceAllStringFunc(text, func(block string) string {
		groups := conditionalPattern.FindStringSubmatch(block)
		name, body := groups[1], groups[2]
		if strings.TrimSpace(vars[name]) == "" {
			return ""
		}
		return body
	})

	for name, value := range vars {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	// Collapse placeholders that had no variable bound.
	text = regexp.MustCompile(`\{\{\w+\}\}`).ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}
