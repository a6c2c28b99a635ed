package log

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

func TestErrorChain(t *testing.T) {
	root := errors.New("connection refused")
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{name: "nil", err: nil, want: []string{}},
		{name: "single", err: root, want: []string{"connection refused"}},
		{
			name: "fmt wrapped",
			err:  fmt.Errorf("get bundle: %w", root),
			want: []string{"get bundle: connection refused", "connection refused"},
		},
		{
			name: "stack wrapper collapses",
			err:  xerrors.WithStack(root),
			want: []string{"connection refused"},
		},
		{
			name: "joined",
			err:  errors.Join(errors.New("l1 miss"), errors.New("l2 down")),
			want: []string{"l1 miss\nl2 down", "l1 miss", "l2 down"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorChain(tt.err)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("errorChain = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyTypes(t *testing.T) {
	pathErr := &fs.PathError{Op: "open", Path: "css/site.css", Err: fs.ErrNotExist}
	tests := []struct {
		name        string
		err         error
		wantSurface string
		wantRoot    string
	}{
		{name: "nil"},
		{name: "plain", err: errors.New("x"), wantSurface: "*errors.errorString", wantRoot: "*errors.errorString"},
		{
			name:        "fmt wrapper skipped",
			err:         fmt.Errorf("read resource: %w", pathErr),
			wantSurface: "*fs.PathError",
			wantRoot:    "*errors.errorString",
		},
		{
			name:        "xerrors wrappers skipped",
			err:         xerrors.Wrap(xerrors.WithStack(pathErr), "combine"),
			wantSurface: "*fs.PathError",
			wantRoot:    "*errors.errorString",
		},
		{
			name:        "custom type",
			err:         wrapErr("resolve", &notFoundError{name: "app-js"}),
			wantSurface: "*log.notFoundError",
			wantRoot:    "*log.notFoundError",
		},
		{
			name:        "only wrappers",
			err:         &wrappedErr{msg: "outer", err: nil},
			wantSurface: "*log.wrappedErr",
			wantRoot:    "*log.wrappedErr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface, root := classifyTypes(tt.err)
			if surface != tt.wantSurface || root != tt.wantRoot {
				t.Fatalf("classifyTypes = (%s, %s), want (%s, %s)", surface, root, tt.wantSurface, tt.wantRoot)
			}
		})
	}
}

func TestChainLinks(t *testing.T) {
	root := errors.New("disk full")
	err := xerrors.Wrap(xerrors.Wrap(root, "write artifact"), "store set")

	links := chainLinks(err, 0)
	// both Wrap calls carry a PC; the bare root has no position and is dropped
	if len(links) != 2 {
		t.Fatalf("links = %v", links)
	}
	if links[0]["msg"] != "store set: write artifact: disk full" {
		t.Errorf("first link = %v", links[0]["msg"])
	}
	for i, l := range links {
		if fn, _ := l["func"].(string); !strings.Contains(fn, "TestChainLinks") {
			t.Errorf("link %d func = %v", i, l["func"])
		}
	}

	if got := chainLinks(err, 1); len(got) != 1 {
		t.Errorf("limit 1 gave %d links", len(got))
	}
	if got := chainLinks(root, 5); len(got) != 1 || got[0]["func"] != nil {
		t.Errorf("bare error links = %v", got)
	}
	if got := chainLinks(nil, 5); len(got) != 0 {
		t.Errorf("nil error links = %v", got)
	}
}

func TestAnnotationOnly(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("a: %w", errors.New("b")), true},
		{fmt.Errorf("a: %w %w", errors.New("b"), errors.New("c")), true},
		{xerrors.WithStack(errors.New("b")), true},
		{fmt.Errorf("no wrap %v", "b"), false},
		{&notFoundError{}, false},
	}
	for _, tt := range tests {
		if got := annotationOnly(tt.err); got != tt.want {
			t.Errorf("annotationOnly(%T) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
