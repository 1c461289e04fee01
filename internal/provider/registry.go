package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"flightgate/internal/domain"
)

// Constructor builds a provider instance from profile parameters.
type Constructor func(params map[string]string) (Provider, error)

// Registry maps provider kind names to constructors. Registration is
// idempotent (last writer wins) and safe at any point in the process
// lifetime; construction is deferred until a profile needs the kind.
//
// Constructed instances are cached per (kind, params) so that every call
// bound to the same profile configuration shares one provider, and therefore
// one set of lazily-opened backend connections, for the life of the process.
// Distinct profiles never share an instance because their parameters differ
// (at minimum in their isolation scope).
type Registry struct {
	mu        sync.RWMutex
	kinds     map[string]Constructor
	instances map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:     make(map[string]Constructor),
		instances: make(map[string]Provider),
	}
}

// Register registers a constructor for a kind, replacing any previous one.
func (r *Registry) Register(kind string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = ctor
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Construct returns the provider for the kind and parameters, building it on
// first use and reusing it afterwards.
func (r *Registry) Construct(kind string, params map[string]string) (Provider, error) {
	key := instanceKey(kind, params)

	r.mu.RLock()
	if p, ok := r.instances[key]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	ctor, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.UnknownProviderKindError{Kind: kind}
	}

	p, err := ctor(params)
	if err != nil {
		return nil, fmt.Errorf("construct %q provider: %w", kind, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.instances[key]; ok {
		// Lost the construction race; keep the first instance.
		_ = p.Close()
		return cached, nil
	}
	r.instances[key] = p
	return p, nil
}

// Close releases every constructed provider instance.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for key, p := range r.instances {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.instances, key)
	}
	return firstErr
}

// instanceKey builds a stable cache key from a kind and its parameters.
func instanceKey(kind string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(kind)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(params[k])
	}
	return b.String()
}
