package solver

import (
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Separator splits a solver id into provider and algorithm.
const Separator = "/"

var (
	// ErrUnknownSolver is returned when a solver id names no registered algorithm.
	ErrUnknownSolver = errors.New("unknown solver")
	// ErrDuplicateProvider is returned when registering a provider name twice.
	ErrDuplicateProvider = errors.New("provider already registered")
)

// Registry maps provider names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// DefaultRegistry returns a registry holding the builtin providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// cannot fail on a fresh registry
	_ = r.Register(CriGroupName, NewCriGroup())
	return r
}

// Register adds a provider under name.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || strings.Contains(name, Separator) {
		return errors.Errorf("invalid provider name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		return errors.Wrap(ErrDuplicateProvider, name)
	}
	r.providers[name] = p
	return nil
}

// Providers returns the registered provider names in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.providers)
	slices.Sort(names)
	return names
}

// SolverIDs lists every "<provider>/<algorithm>" id.
func (r *Registry) SolverIDs() []string {
	var ids []string
	for _, name := range r.Providers() {
		r.mu.RLock()
		p := r.providers[name]
		r.mu.RUnlock()
		ids = append(ids, lo.Map(p.Algorithms(), func(alg string, _ int) string {
			return name + Separator + alg
		})...)
	}
	return ids
}

// Handle is a resolved solver id.
type Handle struct {
	ID        string
	Provider  Provider
	Algorithm string
}

// Resolve looks up the algorithm named by a "<provider>/<algorithm>" id.
func (r *Registry) Resolve(id string) (Handle, error) {
	providerName, algorithm, ok := strings.Cut(id, Separator)
	if !ok || providerName == "" || algorithm == "" {
		return Handle{}, errors.Wrapf(ErrUnknownSolver, "%q is not of the form provider%salgorithm", id, Separator)
	}
	r.mu.RLock()
	p, ok := r.providers[providerName]
	r.mu.RUnlock()
	if !ok {
		return Handle{}, errors.Wrapf(ErrUnknownSolver, "no provider %q", providerName)
	}
	if !slices.Contains(p.Algorithms(), algorithm) {
		return Handle{}, errors.Wrapf(ErrUnknownSolver, "provider %q has no algorithm %q", providerName, algorithm)
	}
	return Handle{ID: id, Provider: p, Algorithm: algorithm}, nil
}
