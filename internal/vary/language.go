package vary

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

const LanguageName = "language"

// ParamLanguage is the params key the language provider fills.
const ParamLanguage = "language"

// Language varies a bundle by the visitor's language.
//
// Sources, first match wins: session value, query parameter, cookie,
// Accept-Language header. Whatever is found is matched against the supported
// list; the first supported language is the fallback.
type Language struct {
	supported []language.Tag
	matcher   language.Matcher

	sessionKey string
	queryKey   string
	cookieKey  string
	appendKey  bool
	strict     bool
}

// NewLanguage builds a Language provider.
//
// Options: supported (required, comma list), session (default "session.lang"),
// query (default "lang"), cookie (default "lang"), append_key (default true),
// strict (default false).
func NewLanguage(b *bundle.Bundle, opts map[string]string) (Provider, error) {
	if err := checkOptions(opts, "supported", "session", "query", "cookie", "append_key", "strict"); err != nil {
		return nil, err
	}
	raw := optList(opts, "supported")
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: supported languages are required", ErrInvalidOptions)
	}
	tags := make([]language.Tag, 0, len(raw))
	for _, s := range raw {
		t, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: supported language %q: %v", ErrInvalidOptions, s, err)
		}
		tags = append(tags, t)
	}

	appendKey, err := optBool(opts, "append_key", true)
	if err != nil {
		return nil, err
	}
	strict, err := optBool(opts, "strict", false)
	if err != nil {
		return nil, err
	}

	return &Language{
		supported:  tags,
		matcher:    language.NewMatcher(tags),
		sessionKey: optString(opts, "session", "session.lang"),
		queryKey:   PrefixQuery + optString(opts, "query", "lang"),
		cookieKey:  PrefixCookie + optString(opts, "cookie", "lang"),
		appendKey:  appendKey,
		strict:     strict,
	}, nil
}

func (l *Language) AppendKeyToURL() bool { return l.appendKey }

func (l *Language) Derive(ctx Context, b *bundle.Bundle) (Result, error) {
	for _, key := range []string{l.sessionKey, l.queryKey, l.cookieKey} {
		raw, ok := ctx.Value(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		t, err := language.Parse(strings.TrimSpace(raw))
		if err != nil {
			if l.strict {
				return Result{}, &ProviderError{Provider: LanguageName, Bundle: b.Name, Field: key, Err: fmt.Errorf("%w: %v", ErrMalformedContext, err)}
			}
			continue
		}
		return l.result(t), nil
	}

	if raw, ok := ctx.Value(PrefixHeader + "Accept-Language"); ok && raw != "" {
		tags, _, err := language.ParseAcceptLanguage(raw)
		if err == nil && len(tags) > 0 {
			return l.result(tags...), nil
		}
	}

	return l.pick(0), nil
}

func (l *Language) result(want ...language.Tag) Result {
	_, idx, conf := l.matcher.Match(want...)
	if conf == language.No {
		idx = 0
	}
	return l.pick(idx)
}

func (l *Language) pick(idx int) Result {
	tag := l.supported[idx].String()
	return Result{
		Key:    strings.ToLower(tag),
		Params: Params{ParamLanguage: tag},
	}
}
