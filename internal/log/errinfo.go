package log

import (
	"errors"
	"fmt"
	"reflect"
)

// xerrorsWrapper is implemented by the annotation wrappers in
// internal/xerrors. They carry position data, not meaning, so the
// error_type reported is the first error beneath them.
type xerrorsWrapper interface{ IsXerrorsWrapper() }

type hasPC interface{ PC() uintptr }

type hasStack interface{ StackPCs() []uintptr }

// errorFields returns the kv pairs Error attaches for err.
func (s *slogLogger) errorFields(err error) []any {
	surface, root := classifyTypes(err)
	kv := []any{"err", err, "error_type", surface, "cause_type", root}
	if chain := errorChain(err); len(chain) > 0 {
		kv = append(kv, "error_chain", chain)
	}
	if s.includeErrorLinks {
		kv = append(kv, "error_links", chainLinks(err, s.maxErrorLinks))
	}
	return kv
}

// errorChain lists the distinct messages from err down to its root,
// followed by the members of err when it is a joined error.
func errorChain(err error) []string {
	out := make([]string, 0, 8)
	push := func(e error) {
		if msg := e.Error(); len(out) == 0 || out[len(out)-1] != msg {
			out = append(out, msg)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		push(e)
	}
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range m.Unwrap() {
			if e != nil {
				push(e)
			}
		}
	}
	return out
}

// chainLinks walks up to limit links of err, recording the source position
// each wrapper was created at. The outermost link is always included.
func chainLinks(err error, limit int) []map[string]any {
	links := make([]map[string]any, 0, 8)
	for depth, e := 0, err; e != nil && (limit <= 0 || depth < limit); depth, e = depth+1, errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}

		var (
			fn, file string
			line     int
			ok       bool
		)
		switch v := e.(type) {
		case hasPC:
			fn, file, line, ok = frameFromPC(v.PC())
		case hasStack:
			fn, file, line, ok = firstExtFrame(v.StackPCs())
		}
		if ok {
			link["func"], link["file"], link["line"] = fn, file, line
		}
		if depth == 0 || ok {
			links = append(links, link)
		}
	}
	return links
}

// classifyTypes returns the type of the first meaningful error in the
// chain and the type of the root cause.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface == "" && !annotationOnly(e) {
			surface = fmt.Sprintf("%T", e)
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}

// annotationOnly reports wrappers that add context but no type of their own.
func annotationOnly(e error) bool {
	if _, ok := e.(xerrorsWrapper); ok {
		return true
	}
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() == "fmt" && (t.Name() == "wrapError" || t.Name() == "wrapErrors")
}
