// ABOUTME: Ordered registry of capability providers with startup duplicate-name detection
// ABOUTME: Lookups walk providers in registration order and tolerate a misbehaving provider

package packs

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	owners    map[string]string // tool name -> provider id
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owners: make(map[string]string),
		logger: logger.With("component", "registry"),
	}
}

// Register adds a provider. It fails without registering anything when one
// of the provider's tool names is already taken, including by itself.
func (r *Registry) Register(p Provider) error {
	defs, err := safeListTools(p)
	if err != nil {
		return fmt.Errorf("listing tools of provider %s: %w", p.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if owner, exists := r.owners[def.Name]; exists {
			return fmt.Errorf("%w: tool '%s' from provider %s already registered by %s", ErrToolCollision, def.Name, p.ID(), owner)
		}
		if seen[def.Name] {
			return fmt.Errorf("%w: tool '%s' declared twice by provider %s", ErrToolCollision, def.Name, p.ID())
		}
		seen[def.Name] = true
	}

	for _, def := range defs {
		r.owners[def.Name] = p.ID()
	}
	r.providers = append(r.providers, p)

	r.logger.Debug("provider registered", "provider_id", p.ID(), "tool_count", len(defs))
	return nil
}

// RegisterAll registers providers in order and stops at the first error.
func (r *Registry) RegisterAll(providers ...Provider) error {
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Providers returns the providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// ListAllTools concatenates every provider's tools in registration order.
// A provider whose ListTools panics is logged and skipped.
func (r *Registry) ListAllTools() []ToolDefinition {
	var all []ToolDefinition
	for _, p := range r.Providers() {
		defs, err := safeListTools(p)
		if err != nil {
			r.logger.Error("provider failed to list tools", "provider_id", p.ID(), "error", err)
			continue
		}
		all = append(all, defs...)
	}
	return all
}

// Lookup returns the first provider, in registration order, that owns name.
func (r *Registry) Lookup(name string) Provider {
	for _, p := range r.Providers() {
		owns, err := safeOwns(p, name)
		if err != nil {
			r.logger.Error("provider failed ownership check", "provider_id", p.ID(), "tool_name", name, "error", err)
			continue
		}
		if owns {
			return p
		}
	}
	return nil
}

// ToolCount returns the number of registered tool names.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

func safeListTools(p Provider) (defs []ToolDefinition, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.ListTools(), nil
}

func safeOwns(p Provider, name string) (owns bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Owns(name), nil
}
