package httpmw

import "net/http"

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Stack is an ordered list of middleware, outermost first. Nil entries are
// skipped so optional middleware can be listed inline.
type Stack []Middleware

// Append returns a new Stack with mws added innermost.
func (s Stack) Append(mws ...Middleware) Stack {
	out := make(Stack, 0, len(s)+len(mws))
	out = append(out, s...)
	return append(out, mws...)
}

// If appends mw only when cond holds.
func (s Stack) If(cond bool, mw Middleware) Stack {
	if !cond {
		return s
	}
	return s.Append(mw)
}

// Then wraps h in every middleware of the stack.
func (s Stack) Then(h http.Handler) http.Handler {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			h = s[i](h)
		}
	}
	return h
}
