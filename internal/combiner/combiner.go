// Package combiner builds one variant of a bundle: it reads the resources in
// order, runs the filters per resource, joins and minifies the result.
package combiner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlecache"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

const (
	// DefaultMaxResourceSize caps a single resource read from content.
	DefaultMaxResourceSize = 2 << 20
	// DefaultMaxBundleSize caps the combined output before minification.
	DefaultMaxBundleSize = 8 << 20
)

type Options struct {
	MaxResourceSize int64
	MaxBundleSize   int64
	Now             func() time.Time
}

// Engine is stateless apart from its limits and is safe for concurrent use.
type Engine struct {
	maxResource int64
	maxBundle   int64
	now         func() time.Time
	tracer      trace.Tracer
}

func New(opts Options) *Engine {
	e := &Engine{
		maxResource: opts.MaxResourceSize,
		maxBundle:   opts.MaxBundleSize,
		now:         opts.Now,
		tracer:      otelx.Tracer("combiner"),
	}
	if e.maxResource <= 0 {
		e.maxResource = DefaultMaxResourceSize
	}
	if e.maxBundle <= 0 {
		e.maxBundle = DefaultMaxBundleSize
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// separator keeps statements from running together when a script lacks a
// trailing semicolon.
func separator(t bundle.Type) []byte {
	if t == bundle.TypeJS {
		return []byte(";\n")
	}
	return []byte("\n")
}

// Build produces the artifact for entry under the variance res.
func (e *Engine) Build(ctx context.Context, fsys fs.FS, entry *catalog.Entry, res vary.Result) (*bundlecache.Artifact, error) {
	b := entry.Bundle
	ctx, span := e.tracer.Start(ctx, "bundle.build",
		trace.WithAttributes(otelx.BundleAttrs(b.Name, b.Version, res.Key)...),
		trace.WithAttributes(attribute.Int("bundle.resources", len(b.Resources))),
	)
	defer span.End()

	start := e.now()
	body, err := e.combine(ctx, fsys, entry, res.Params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}

	if entry.Minifier != nil {
		before := len(body)
		body, err = entry.Minifier.Minify(ctx, body, b.Type, res.Params)
		if err != nil {
			err = xerrors.Wrapf(err, "bundle %q minifier %q", b.Name, entry.Minifier.Name())
			span.RecordError(err)
			span.SetStatus(codes.Error, "minify failed")
			return nil, err
		}
		span.SetAttributes(attribute.Int("bundle.size_before_minify", before))
	}
	span.SetAttributes(attribute.Int("bundle.size", len(body)))

	a := &bundlecache.Artifact{
		Bundle:      b.Name,
		Version:     b.Version,
		VaryKey:     res.Key,
		ContentType: b.Type.ContentType(),
		Body:        body,
		ETag:        ETag(body),
		BuiltAt:     e.now().UTC(),
	}

	// request-scoped logger already carries the bundle name
	log.FromContext(ctx).Debug(ctx, "bundle built",
		"version", b.Version,
		"vary_key", res.Key,
		"params", res.Params.Encode(),
		"bytes", len(body),
		"duration_ms", e.now().Sub(start).Milliseconds(),
	)
	return a, nil
}

func (e *Engine) combine(ctx context.Context, fsys fs.FS, entry *catalog.Entry, params vary.Params) ([]byte, error) {
	b := entry.Bundle
	sep := separator(b.Type)

	var out bytes.Buffer
	for i, r := range b.Resources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.read(fsys, r.Path)
		if err != nil {
			return nil, xerrors.Wrapf(err, "bundle %q resource %q", b.Name, r.Path)
		}

		st := pipeline.Stage{Bundle: b, Resource: r.Path, Params: params}
		for _, f := range entry.Filters {
			data, err = f.Apply(ctx, data, st)
			if err != nil {
				return nil, xerrors.Wrapf(err, "bundle %q resource %q filter %q", b.Name, r.Path, f.Name())
			}
		}

		if i > 0 {
			out.Write(sep)
		}
		out.Write(bytes.TrimRight(data, "\n"))
		if int64(out.Len()) > e.maxBundle {
			return nil, xerrors.Newf("bundle %q exceeds %d bytes", b.Name, e.maxBundle)
		}
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func (e *Engine) read(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, e.maxResource+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.maxResource {
		return nil, fmt.Errorf("resource exceeds %d bytes", e.maxResource)
	}
	return data, nil
}

// ETag is the strong validator for a built body.
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}
