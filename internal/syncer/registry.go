// Package syncer drives one replication run: page the primary store,
// transform records, and stream them into the generation behind an alias.
package syncer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/memsync/internal/engine"
	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/transform"
)

// Strategy bundles everything alias-specific about a sync: the schema its
// generations are built with and the transformer producing its documents.
// Supporting a new index type means registering a new strategy, not
// branching on alias strings.
type Strategy struct {
	Schema      engine.Schema
	Transformer transform.Transformer
}

// Registry maps alias names to their sync strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry returns the registry with all built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("memories", Strategy{
		Schema:      engine.MemorySchema(),
		Transformer: transform.NewMemoryTransformer(),
	})
	return r
}

// Register adds a strategy for an alias. Registering the same alias twice
// is a programming error and is rejected.
func (r *Registry) Register(alias string, s Strategy) error {
	if alias == "" {
		return syncerrors.New(syncerrors.ErrCodeInvalidInput, "alias must not be empty", nil)
	}
	if s.Transformer == nil {
		return syncerrors.New(syncerrors.ErrCodeInvalidInput,
			fmt.Sprintf("strategy for %q has no transformer", alias), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[alias]; exists {
		return syncerrors.New(syncerrors.ErrCodeInvalidInput,
			fmt.Sprintf("strategy for %q is already registered", alias), nil)
	}
	r.strategies[alias] = s
	return nil
}

// Resolve returns the strategy for an alias. Resolution happens once at
// run start; an unknown alias is fatal.
func (r *Registry) Resolve(alias string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[alias]
	if !ok {
		return Strategy{}, syncerrors.New(syncerrors.ErrCodeAliasUnresolved,
			fmt.Sprintf("no sync strategy registered for alias %q", alias), nil)
	}
	return s, nil
}

// Aliases lists registered aliases, sorted.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make([]string, 0, len(r.strategies))
	for alias := range r.strategies {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
