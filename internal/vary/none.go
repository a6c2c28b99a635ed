package vary

import "github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"

const NoneName = "none"

// None is the provider for bundles that have a single variant.
type None struct{}

func NewNone(_ *bundle.Bundle, opts map[string]string) (Provider, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	return None{}, nil
}

func (None) Derive(Context, *bundle.Bundle) (Result, error) { return Result{}, nil }
func (None) AppendKeyToURL() bool                           { return false }
