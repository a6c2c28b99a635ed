package vary

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Key prefixes understood by RequestView.
const (
	PrefixHeader = "header."
	PrefixCookie = "cookie."
	PrefixQuery  = "query."
)

type valuesKey struct{}

// WithValue attaches request-scoped state (for example session data resolved
// by upstream middleware) that RequestView exposes under key.
func WithValue(ctx context.Context, key, value string) context.Context {
	prev, _ := ctx.Value(valuesKey{}).(map[string]string)
	next := make(map[string]string, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	next[key] = value
	return context.WithValue(ctx, valuesKey{}, next)
}

// RequestView exposes an *http.Request as a read-only Context.
//
// Keys:
//   - "header.<Name>", "cookie.<name>", "query.<name>"
//   - "path", "host"
//   - anything attached with WithValue, which takes precedence
type RequestView struct {
	r        *http.Request
	query    url.Values
	injected map[string]string
}

// NewRequestView snapshots the query string and injected values of r.
func NewRequestView(r *http.Request) *RequestView {
	v := &RequestView{r: r}
	if r.URL != nil {
		v.query = r.URL.Query()
	}
	v.injected, _ = r.Context().Value(valuesKey{}).(map[string]string)
	return v
}

func (v *RequestView) Value(key string) (string, bool) {
	if s, ok := v.injected[key]; ok {
		return s, true
	}

	switch {
	case strings.HasPrefix(key, PrefixHeader):
		name := strings.TrimPrefix(key, PrefixHeader)
		vals := v.r.Header.Values(name)
		if len(vals) == 0 {
			return "", false
		}
		return strings.Join(vals, ","), true
	case strings.HasPrefix(key, PrefixCookie):
		c, err := v.r.Cookie(strings.TrimPrefix(key, PrefixCookie))
		if err != nil {
			return "", false
		}
		return c.Value, true
	case strings.HasPrefix(key, PrefixQuery):
		name := strings.TrimPrefix(key, PrefixQuery)
		if _, ok := v.query[name]; !ok {
			return "", false
		}
		return v.query.Get(name), true
	case key == "path":
		if v.r.URL == nil {
			return "", false
		}
		return v.r.URL.Path, true
	case key == "host":
		return v.r.Host, v.r.Host != ""
	}
	return "", false
}
