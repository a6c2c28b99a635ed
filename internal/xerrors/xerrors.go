// Package xerrors attaches call stacks and caller PCs to errors so the log
// package can report where a failure started. Is, As and Join re-export the
// standard library so callers need a single errors import.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked is implemented by errors carrying a captured stack.
type stacked interface{ StackPCs() []uintptr }

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }
func (w *withStack) IsXerrorsWrapper()   {}

// skip counts frames above the caller of captureStack
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip)}
}

// WithStack records the caller's stack on err, even if err already has one.
func WithStack(err error) error { return withStackSkip(err, 2) }

// EnsureTrace records the caller's stack unless err already carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	if len(Stack(err)) > 0 {
		return err
	}
	return withStackSkip(err, 2)
}

// Stack returns the outermost stack recorded on err, or nil.
func Stack(err error) []uintptr {
	var hs stacked
	if errors.As(err, &hs) && hs != nil {
		return hs.StackPCs()
	}
	return nil
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string     { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error     { return w.err }
func (w *wrap) PC() uintptr       { return w.pc }
func (w *wrap) IsXerrorsWrapper() {}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

// Wrap prefixes err with msg and records the caller. Wrap(nil, ...) is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

func New(msg string) error { return withStackSkip(errors.New(msg), 2) }

// Newf formats like fmt.Errorf, so %w wraps.
func Newf(f string, args ...any) error { return withStackSkip(fmt.Errorf(f, args...), 2) }

func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func Join(errs ...error) error      { return errors.Join(errs...) }
