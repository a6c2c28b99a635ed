package vary

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingContext means state the provider requires is absent from the request.
	ErrMissingContext = errors.New("vary: required context missing")
	// ErrMalformedContext means the state is present but unusable.
	ErrMalformedContext = errors.New("vary: malformed context")
	// ErrWrongBundle means a provider was invoked for a bundle it is not registered with.
	ErrWrongBundle = errors.New("vary: provider invoked for foreign bundle")
	// ErrUnknownProvider means the manifest names a provider that is not registered.
	ErrUnknownProvider = errors.New("vary: unknown provider")
	// ErrInvalidOptions means provider options in the manifest are invalid.
	ErrInvalidOptions = errors.New("vary: invalid provider options")
)

// ProviderError reports that variance could not be derived from the request.
// Hosting code should fail the request rather than serve a bundle.
type ProviderError struct {
	Provider string
	Bundle   string
	Field    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vary provider %q for bundle %q: %s: %v", e.Provider, e.Bundle, e.Field, e.Err)
	}
	return fmt.Sprintf("vary provider %q for bundle %q: %v", e.Provider, e.Bundle, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err carries a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
