package content

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
)

var ErrNotReady = errors.New("content: no active snapshot")

// Manager holds the active content snapshot. Readers never block; a swap
// replaces the whole snapshot at once so a request sees one generation of
// files and compiled bundles.
type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set activates a copy of s and returns the snapshot it replaced, or nil.
func (m *Manager) Set(s Snapshot) *Snapshot {
	if s.LoadedAt.IsZero() {
		s.LoadedAt = time.Now().UTC()
	}
	return m.active.Swap(&s)
}

// Get returns the active snapshot. ok is false until a snapshot with both a
// filesystem and a compiled catalog has been set.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s.usable()
}

func (s *Snapshot) usable() bool {
	return s != nil && s.FS != nil && s.Catalog != nil
}

func (m *Manager) ReadyErr() error {
	if !m.active.Load().usable() {
		return ErrNotReady
	}
	return nil
}

// activeField reads one field of the active snapshot, or zero when none is set.
func activeField[T any](m *Manager, f func(*Snapshot) T) T {
	if s := m.active.Load(); s != nil {
		return f(s)
	}
	var zero T
	return zero
}

// ContentVersion and ContentHash feed the response content headers.
func (m *Manager) ContentVersion() string {
	return activeField(m, func(s *Snapshot) string { return s.Meta.Version })
}

func (m *Manager) ContentHash() string {
	return activeField(m, func(s *Snapshot) string { return s.Meta.SHA256 })
}

func (m *Manager) Catalog() *catalog.Catalog {
	return activeField(m, func(s *Snapshot) *catalog.Catalog { return s.Catalog })
}

func (m *Manager) Source() Source {
	if src := activeField(m, func(s *Snapshot) Source { return s.Meta.Source }); src != "" {
		return src
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	return activeField(m, func(s *Snapshot) time.Time { return s.LoadedAt })
}
