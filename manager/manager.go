// Package manager wires the device registry, the tweak catalog, and the
// restore orchestrator into the apply and reset pipelines.
package manager

import (
	"context"
	"sync"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/restore"
	"github.com/stepherg/gestaltmgr/tweak"
)

// Manager runs one transaction at a time against the registry's current
// selection. The mutex serializes refresh/select against in-flight
// transactions; the registry itself carries no locking.
type Manager struct {
	mu           sync.Mutex
	registry     *gestaltmgr.Registry
	catalog      *tweak.Catalog
	orchestrator *restore.Orchestrator
	opts         gestaltmgr.Options
}

func New(registry *gestaltmgr.Registry, catalog *tweak.Catalog, orchestrator *restore.Orchestrator, opts gestaltmgr.Options) *Manager {
	return &Manager{
		registry:     registry,
		catalog:      catalog,
		orchestrator: orchestrator,
		opts:         opts,
	}
}

// Registry exposes the underlying registry for read accessors. Mutating
// calls should go through Refresh/Select below so they hold the lock.
func (m *Manager) Registry() *gestaltmgr.Registry { return m.registry }

// Catalog returns the tweak catalog.
func (m *Manager) Catalog() *tweak.Catalog { return m.catalog }

// Refresh re-runs discovery under the transaction lock.
func (m *Manager) Refresh(ctx context.Context) ([]gestaltmgr.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Refresh(ctx)
}

// Select changes the current device under the transaction lock.
func (m *Manager) Select(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.Select(index)
}

// Apply merges the catalog into fresh documents, builds the transaction,
// and submits it. Expected to run off any interactive goroutine: the
// channel call blocks until the device acknowledges or fails.
func (m *Manager) Apply(ctx context.Context, progress gestaltmgr.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.registry.Current()
	if !ok {
		return gestaltmgr.ErrNoDevice
	}

	base, err := m.registry.LoadGestalt()
	if err != nil {
		return err
	}
	res := tweak.Merge(m.catalog, base, false)
	tx, err := restore.BuildApply(res, m.opts)
	if err != nil {
		return err
	}
	return m.orchestrator.Apply(ctx, tx, dev.Session, progress)
}

// Reset submits the single-payload reset transaction, bypassing the merge
// engine entirely.
func (m *Manager) Reset(ctx context.Context, progress gestaltmgr.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.registry.Current()
	if !ok {
		return gestaltmgr.ErrNoDevice
	}
	tx := restore.BuildReset(m.opts)
	return m.orchestrator.Apply(ctx, tx, dev.Session, progress)
}
