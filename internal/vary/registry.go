package vary

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

// Factory builds a provider instance for one bundle from its manifest options.
type Factory func(b *bundle.Bundle, opts map[string]string) (Provider, error)

// Registry maps provider names used in the manifest to factories.
// Registration is explicit; nothing is instantiated by reflection.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NoneName, NewNone)
	r.Register(LanguageName, NewLanguage)
	r.Register(ContextName, NewContextValue)
	return r
}

// Register adds or replaces the factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New instantiates the provider configured for b and binds it to b.
func (r *Registry) New(b *bundle.Bundle) (*Bound, error) {
	name := b.VaryProvider()

	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q for bundle %q", ErrUnknownProvider, name, b.Name)
	}

	p, err := f(b, b.Vary.Options)
	if err != nil {
		return nil, fmt.Errorf("bundle %q provider %q: %w", b.Name, name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: factory %q returned nil for bundle %q", ErrInvalidOptions, name, b.Name)
	}
	return Bind(name, b, p), nil
}

// option helpers shared by the built-in providers

func optString(opts map[string]string, key, def string) string {
	if v, ok := opts[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func optBool(opts map[string]string, key string, def bool) (bool, error) {
	v, ok := opts[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a bool", ErrInvalidOptions, key, v)
	}
	return b, nil
}

func optList(opts map[string]string, key string) []string {
	v, ok := opts[key]
	if !ok {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func checkOptions(opts map[string]string, known ...string) error {
	for k := range opts {
		found := false
		for _, n := range known {
			if k == n {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown option %q", ErrInvalidOptions, k)
		}
	}
	return nil
}
