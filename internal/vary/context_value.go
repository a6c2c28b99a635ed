package vary

import (
	"fmt"
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

const ContextName = "context"

// ContextValue varies a bundle by one value read from the request context,
// for example a role set by auth middleware or a theme cookie.
type ContextValue struct {
	key       string
	param     string
	allowed   map[string]bool
	required  bool
	def       string
	appendKey bool
}

// NewContextValue builds a ContextValue provider.
//
// Options: key (required), param (default: last segment of key),
// allowed (comma list), required (default true), default, append_key (default false).
// A bundle that writes params into its output must list allowed values, since
// the raw request value would otherwise be copied into CSS or JS.
func NewContextValue(b *bundle.Bundle, opts map[string]string) (Provider, error) {
	if err := checkOptions(opts, "key", "param", "allowed", "required", "default", "append_key"); err != nil {
		return nil, err
	}
	key := optString(opts, "key", "")
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidOptions)
	}
	param := key
	if i := strings.LastIndex(key, "."); i >= 0 && i < len(key)-1 {
		param = key[i+1:]
	}
	param = optString(opts, "param", param)

	required, err := optBool(opts, "required", true)
	if err != nil {
		return nil, err
	}
	appendKey, err := optBool(opts, "append_key", false)
	if err != nil {
		return nil, err
	}

	var allowed map[string]bool
	if list := optList(opts, "allowed"); len(list) > 0 {
		allowed = make(map[string]bool, len(list))
		for _, v := range list {
			allowed[v] = true
		}
	}

	if allowed == nil && b != nil && b.HasFilter(bundle.ParamsFilter) {
		return nil, fmt.Errorf("%w: allowed is required with the %s filter", ErrInvalidOptions, bundle.ParamsFilter)
	}

	def := optString(opts, "default", "")
	if def != "" && allowed != nil && !allowed[def] {
		return nil, fmt.Errorf("%w: default %q is not in allowed", ErrInvalidOptions, def)
	}

	return &ContextValue{
		key:       key,
		param:     param,
		allowed:   allowed,
		required:  required,
		def:       def,
		appendKey: appendKey,
	}, nil
}

func (c *ContextValue) AppendKeyToURL() bool { return c.appendKey }

func (c *ContextValue) Derive(ctx Context, b *bundle.Bundle) (Result, error) {
	v, ok := ctx.Value(c.key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		switch {
		case c.def != "":
			v = c.def
		case c.required:
			return Result{}, &ProviderError{Provider: ContextName, Bundle: b.Name, Field: c.key, Err: ErrMissingContext}
		default:
			return Result{}, nil
		}
	}
	if c.allowed != nil && !c.allowed[v] {
		return Result{}, &ProviderError{Provider: ContextName, Bundle: b.Name, Field: c.key, Err: fmt.Errorf("%w: value not allowed", ErrMalformedContext)}
	}
	return Result{
		Key:    c.param + "=" + v,
		Params: Params{c.param: v},
	}, nil
}
