// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the per-session conversation transcripts.
//
// Transcripts are in-memory only and live for the process lifetime; there
// is no expiry and no size cap (pruning and summarization are explicit
// non-goals). A coarse store-wide mutex is enough here: mutation is
// append-only or whole-entry delete, and turn processing follows a
// single-writer-per-session discipline.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

// ErrSessionNotFound is returned when a session identifier was never
// created or has been deleted. Maps to 404 at the transport boundary.
var ErrSessionNotFound = errors.New("session not found")

// Store holds ordered message transcripts keyed by session identifier.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]datatypes.Message
	order    []string
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]datatypes.Message),
	}
}

// Append adds a message to the session transcript, creating the session
// lazily on first use. Messages keep strict insertion order.
func (s *Store) Append(sessionID string, msg datatypes.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		s.order = append(s.order, sessionID)
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
}

// History returns a copy of the session transcript in append order.
// Fails with ErrSessionNotFound for unknown identifiers.
func (s *Store) History(sessionID string) ([]datatypes.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, exists := s.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := make([]datatypes.Message, len(messages))
	copy(out, messages)
	return out, nil
}

// Exists reports whether the session identifier is known.
func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.sessions[sessionID]
	return exists
}

// Delete removes all state for the identifier. Fails with
// ErrSessionNotFound when absent; a repeated delete for the same
// identifier therefore fails the second time, matching the
// 404-on-missing transport semantic.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns all known session identifiers in creation order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
