package vary

import (
	"fmt"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

// Bound pins a provider to the single bundle it was registered with.
// Hosting code only ever calls providers through a Bound.
type Bound struct {
	name   string
	bundle *bundle.Bundle
	p      Provider
	append bool
}

// Bind ties p to b. The URL policy is read once here since it is static per provider.
func Bind(name string, b *bundle.Bundle, p Provider) *Bound {
	return &Bound{name: name, bundle: b, p: p, append: p.AppendKeyToURL()}
}

// Name is the provider name from the manifest.
func (b *Bound) Name() string { return b.name }

// Bundle is the bundle this provider serves.
func (b *Bound) Bundle() *bundle.Bundle { return b.bundle }

func (b *Bound) AppendKeyToURL() bool { return b.append }

// Derive runs the provider for its own bundle. The returned key is sanitized
// and AppendKeyToURL is stamped from the provider policy.
func (b *Bound) Derive(ctx Context, target *bundle.Bundle) (Result, error) {
	if target == nil || target.Name != b.bundle.Name {
		got := "<nil>"
		if target != nil {
			got = target.Name
		}
		return Result{}, fmt.Errorf("%w: provider %q is bound to %q, called for %q", ErrWrongBundle, b.name, b.bundle.Name, got)
	}
	if ctx == nil {
		return Result{}, &ProviderError{Provider: b.name, Bundle: b.bundle.Name, Err: ErrMissingContext}
	}

	res, err := b.p.Derive(ctx, b.bundle)
	if err != nil {
		if IsProviderError(err) {
			return Result{}, err
		}
		return Result{}, &ProviderError{Provider: b.name, Bundle: b.bundle.Name, Err: err}
	}

	res.Key = SanitizeKey(res.Key)
	res.AppendKeyToURL = b.append
	res.Params = res.Params.Clone()
	return res, nil
}
