package model

import (
	"sync"
	"time"
)

// Session is a bidirectional client connection tracked by the broadcast
// layer (C7). Filters are mutable via control messages; an empty filter set
// means "no restriction" (all symbols / all relevant data types).
type Session struct {
	ID       string
	Closed   bool
	LastSend time.Time

	mu       sync.RWMutex
	symbols  map[string]struct{}
	dataTypes map[string]struct{}
}

// NewSession constructs an open Session with empty (unrestricted) filters.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		symbols:   make(map[string]struct{}),
		dataTypes: make(map[string]struct{}),
	}
}

// SetSymbolFilter replaces the session's symbol filter set. An empty slice
// clears the filter (matches all symbols).
func (s *Session) SetSymbolFilter(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = toSet(symbols)
}

// SetDataTypeFilter replaces the session's data-type filter set. An empty
// slice clears the filter (matches all data types).
func (s *Session) SetDataTypeFilter(types []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataTypes = toSet(types)
}

// Matches reports whether a (symbol, dataType) pair should be delivered to
// this session under its current filters.
func (s *Session) Matches(symbol, dataType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.symbols) > 0 {
		if _, ok := s.symbols[symbol]; !ok {
			return false
		}
	}
	if len(s.dataTypes) > 0 {
		if _, ok := s.dataTypes[dataType]; !ok {
			return false
		}
	}
	return true
}

// Touch records a send against this session, for idle-timeout bookkeeping.
func (s *Session) Touch(at time.Time) {
	s.mu.Lock()
	s.LastSend = at
	s.mu.Unlock()
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
