package xerrors

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"testing"
)

func funcNames(pcs []uintptr) []string {
	var out []string
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		out = append(out, f.Function)
		if !more {
			return out
		}
	}
}

func hasFunc(pcs []uintptr, substr string) bool {
	for _, fn := range funcNames(pcs) {
		if strings.Contains(fn, substr) {
			return true
		}
	}
	return false
}

// loadManifest stands in for a caller a few frames down.
func loadManifest() error { return Newf("parse %s: %w", "bundles.json", fs.ErrInvalid) }

func TestConstructors(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name      string
		err       error
		msg       string
		wantStack bool
		wantPC    bool
	}{
		{name: "New", err: New("catalog empty"), msg: "catalog empty", wantStack: true},
		{name: "Newf", err: Newf("bundle %q not found", "site-css"), msg: `bundle "site-css" not found`, wantStack: true},
		{name: "WithStack", err: WithStack(base), msg: "boom", wantStack: true},
		{name: "EnsureTrace", err: EnsureTrace(base), msg: "boom", wantStack: true},
		{name: "Wrap", err: Wrap(base, "minify"), msg: "minify: boom", wantPC: true},
		{name: "Wrapf", err: Wrapf(base, "fetch %s", "s3://b/k"), msg: "fetch s3://b/k: boom", wantPC: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Fatalf("Error() = %q, want %q", tt.err.Error(), tt.msg)
			}
			if _, ok := tt.err.(interface{ IsXerrorsWrapper() }); !ok {
				t.Fatal("missing IsXerrorsWrapper marker")
			}
			pcs := Stack(tt.err)
			if tt.wantStack != (len(pcs) > 0) {
				t.Fatalf("stack len = %d, want stack %v", len(pcs), tt.wantStack)
			}
			if tt.wantStack && !hasFunc(pcs, "TestConstructors") {
				t.Fatalf("stack does not start at the caller: %v", funcNames(pcs))
			}
			if tt.wantPC {
				pc := tt.err.(interface{ PC() uintptr }).PC()
				if !hasFunc([]uintptr{pc}, "TestConstructors") {
					t.Fatalf("PC resolves to %v", funcNames([]uintptr{pc}))
				}
			}
		})
	}
}

func TestNilPassthrough(t *testing.T) {
	for name, err := range map[string]error{
		"WithStack":   WithStack(nil),
		"EnsureTrace": EnsureTrace(nil),
		"Wrap":        Wrap(nil, "x"),
		"Wrapf":       Wrapf(nil, "x %d", 1),
	} {
		if err != nil {
			t.Errorf("%s(nil) = %v", name, err)
		}
	}
}

func TestStack(t *testing.T) {
	if Stack(nil) != nil || Stack(errors.New("plain")) != nil {
		t.Fatal("Stack should be nil without a captured stack")
	}

	inner := loadManifest()
	outer := Wrap(fmt.Errorf("compile: %w", inner), "load release")
	if !hasFunc(Stack(outer), "loadManifest") {
		t.Fatalf("Stack should find the stack under wraps: %v", funcNames(Stack(outer)))
	}
	if !errors.Is(outer, fs.ErrInvalid) {
		t.Fatal("%w inside Newf should stay matchable")
	}
}

func TestEnsureTrace_KeepsExisting(t *testing.T) {
	err := loadManifest()
	if EnsureTrace(err) != err {
		t.Fatal("EnsureTrace replaced an existing stack")
	}
	wrapped := Wrap(err, "ctx")
	if EnsureTrace(wrapped) != wrapped {
		t.Fatal("EnsureTrace should see a stack below a wrap")
	}

	// WithStack always captures, so the outer stack wins
	again := WithStack(err)
	if hasFunc(Stack(again), "loadManifest") {
		t.Fatal("WithStack should record the current caller")
	}
}

func TestWrapChain(t *testing.T) {
	base := fs.ErrNotExist
	l1 := Wrap(base, "open css/site.css")
	l2 := Wrapf(l1, "bundle %s", "site-css")
	l3 := Wrap(l2, "build")

	if l3.Error() != "build: bundle site-css: open css/site.css: file does not exist" {
		t.Fatalf("Error() = %q", l3.Error())
	}
	if !Is(l3, fs.ErrNotExist) {
		t.Fatal("Is lost the sentinel")
	}
	var w *wrap
	if !As(l3, &w) || w.msg != "build" {
		t.Fatalf("As = %v", w)
	}

	seen := map[uintptr]bool{}
	for e := error(l3); e != nil; e = errors.Unwrap(e) {
		if p, ok := e.(interface{ PC() uintptr }); ok {
			seen[p.PC()] = true
		}
	}
	if len(seen) != 3 {
		t.Fatalf("distinct PCs = %d, want one per Wrap call", len(seen))
	}
}

func TestJoin(t *testing.T) {
	a, b := New("a"), errors.New("b")
	j := Join(a, nil, b)
	if !Is(j, b) || !Is(j, a) {
		t.Fatal("Join members not matchable")
	}
	if Join(nil, nil) != nil {
		t.Fatal("Join of nils should be nil")
	}
}

func TestCaptureStack_Depth(t *testing.T) {
	var recurse func(int) []uintptr
	recurse = func(n int) []uintptr {
		if n == 0 {
			return captureStack(0)
		}
		return recurse(n - 1)
	}
	if pcs := recurse(maxStackDepth * 2); len(pcs) != maxStackDepth {
		t.Fatalf("stack len = %d, want capped at %d", len(pcs), maxStackDepth)
	}
	if callerPC(0) == 0 {
		t.Fatal("callerPC returned 0")
	}
}
