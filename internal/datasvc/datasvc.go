// Package datasvc implements the universal data service (C2): a provider
// registry plus a single global event sink, generalized from the teacher's
// internal/marketdata/bus.FanOut (single-typed candle fan-out to N
// subscribers) to a typed multi-event fan-in register (one registry entry
// per provider, one handler for the whole process).
package datasvc

import (
	"fmt"
	"sync"

	"cryptoengine/internal/provider"
)

// Service is the process-wide provider registry and event sink. There is
// no business logic here: its only job is letting multiple provider
// implementations coexist behind one normalized event stream so downstream
// components (C3-C7) never depend on provider specifics.
type Service struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	handler   provider.Handler
}

// New constructs an empty Service.
func New() *Service {
	return &Service{
		providers: make(map[string]provider.Provider),
	}
}

// RegisterProvider adds a provider under a name (e.g. "binance") and wires
// this Service's forwarding handler into it.
func (s *Service) RegisterProvider(name string, p provider.Provider) {
	s.mu.Lock()
	s.providers[name] = p
	s.mu.Unlock()
	p.SetHandler(s.forward)
}

// Provider looks up a registered provider by name.
func (s *Service) Provider(name string) (provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("datasvc: unknown provider %q", name)
	}
	return p, nil
}

// Providers returns every registered provider name.
func (s *Service) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// SetHandler registers the single global event sink every registered
// provider's events are forwarded to.
func (s *Service) SetHandler(h provider.Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Service) forward(ev provider.Event) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}
