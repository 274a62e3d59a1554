package content

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var ErrNoSnapshot = errors.New("content: no active snapshot")

type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set publishes a copy of s. LoadedAt defaults to now.
func (m *Manager) Set(s Snapshot) {
	cp := s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(&cp)
}

// Get returns the active snapshot; ok is false until one with a filesystem is set.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

func (m *Manager) meta() Meta {
	if s := m.active.Load(); s != nil {
		return s.Meta
	}
	return Meta{}
}

// ContentVersion and ContentHash implement httpmw.ContentInfo.
func (m *Manager) ContentVersion() string { return m.meta().Version }
func (m *Manager) ContentHash() string    { return m.meta().SHA256 }

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil && s.Meta.Source != "" {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return ErrNoSnapshot
	}
	return nil
}

// Check implements health.Probe.
func (m *Manager) Check(context.Context) error { return m.ReadyErr() }
