// Package inventory owns the canonical device model: it merges the block
// scanner and RAID adapter snapshots, stamps the safety verdicts, and
// publishes an immutable view per scan cycle.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/zenithax-cc/taotie/internal/collector/block"
	"github.com/zenithax-cc/taotie/internal/collector/raid"
	"github.com/zenithax-cc/taotie/internal/config"
	"github.com/zenithax-cc/taotie/internal/store"
)

// BlockSource abstracts the block scanner for tests.
type BlockSource interface {
	Collect(ctx context.Context) (*block.Snapshot, error)
}

// View is one published scan cycle. Devices and warnings are snapshots;
// callers must not mutate them.
type View struct {
	Devices   []*Device `json:"devices"`
	Warnings  []string  `json:"warnings,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

type Manager struct {
	cfg        *config.Config
	scanner    BlockSource
	adapters   []raid.Adapter
	classifier *Classifier

	mu          sync.RWMutex
	devices     []*Device
	byID        map[string]*Device
	warnings    map[string]string // source -> persistent warning until resolved
	lastResults map[string]*store.OperationResult
	scannedAt   time.Time
	subscribers []func(*View)

	cron *cron.Cron
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:         cfg,
		scanner:     block.New(),
		adapters:    raid.Adapters(cfg.StorcliPath, cfg.Sas3ircuPath, cfg.UseSudo),
		classifier:  NewClassifier(cfg.ProtectedMountPoints, cfg.ExpertPin),
		byID:        make(map[string]*Device),
		warnings:    make(map[string]string),
		lastResults: make(map[string]*store.OperationResult),
	}
}

// NewManagerWith injects sources directly; used by tests and by callers
// that already hold adapters.
func NewManagerWith(cfg *config.Config, scanner BlockSource, adapters []raid.Adapter) *Manager {
	m := NewManager(cfg)
	m.scanner = scanner
	m.adapters = adapters
	return m
}

func (m *Manager) Classifier() *Classifier {
	return m.classifier
}

// Scan runs one full collection cycle: block scanner and every RAID adapter
// in parallel, then reconciliation and classification. Source failures
// degrade to partial data with a persistent warning; visibility into device
// state is itself a safety mechanism, so partial data beats no data.
func (m *Manager) Scan(ctx context.Context) (*View, error) {
	var blockSnap *block.Snapshot
	raidSnaps := make([]*raid.Snapshot, len(m.adapters))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap, err := m.scanner.Collect(gctx)
		if err != nil {
			m.setWarning("block", fmt.Sprintf("block device scan failed: %v", err))
			slog.Warn("block scan degraded to empty", "err", err)
			blockSnap = &block.Snapshot{}
			return nil
		}
		m.clearWarning("block")
		blockSnap = snap
		return nil
	})

	for i, adapter := range m.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			snap, err := adapter.Collect(gctx)
			switch {
			case err == nil:
				m.clearWarning(adapter.Name())
				raidSnaps[i] = snap
			case errors.Is(err, raid.ErrUnavailable):
				// Benign: host without this controller family.
				m.clearWarning(adapter.Name())
				slog.Debug("raid adapter absent", "adapter", adapter.Name(), "err", err)
			default:
				// Parse and invocation failures stay visible until a
				// later scan of this source succeeds.
				m.setWarning(adapter.Name(), fmt.Sprintf("%s: %v", adapter.Name(), err))
				slog.Error("raid adapter failed", "adapter", adapter.Name(), "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := Reconcile(blockSnap, raidSnaps, m.classifier)

	m.mu.Lock()
	m.devices = devices
	m.byID = make(map[string]*Device, len(devices))
	for _, dev := range devices {
		dev.LastResult = m.lastResults[dev.ID]
		m.byID[dev.ID] = dev
	}
	m.scannedAt = time.Now()
	view := m.viewLocked()
	subs := append([]func(*View){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}

	return view, nil
}

// View returns the last published cycle without rescanning.
func (m *Manager) View() *View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewLocked()
}

func (m *Manager) viewLocked() *View {
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)

	return &View{
		Devices:   devices,
		Warnings:  m.warningsLocked(),
		ScannedAt: m.scannedAt,
	}
}

// Get looks a device up in the last published cycle.
func (m *Manager) Get(id string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.byID[id]
	return dev, ok
}

// Fresh rescans and returns the device's current record. Orchestrator
// validation goes through here: a verdict from a prior scan is never
// trusted for a destructive decision.
func (m *Manager) Fresh(ctx context.Context, id string) (*Device, error) {
	if _, err := m.Scan(ctx); err != nil {
		return nil, err
	}

	dev, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("device %s not present in current scan", id)
	}
	return dev, nil
}

// AttachResult records a completed operation against the device's
// last-known state. Identity survives rescans through the derived id.
func (m *Manager) AttachResult(res *store.OperationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastResults[res.DeviceID] = res
	if dev, ok := m.byID[res.DeviceID]; ok {
		dev.LastResult = res
	}
}

// Subscribe registers a callback invoked after every published scan cycle.
func (m *Manager) Subscribe(fn func(*View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Warnings returns the currently unresolved source warnings.
func (m *Manager) Warnings() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.warningsLocked()
}

func (m *Manager) warningsLocked() []string {
	if len(m.warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(m.warnings))
	for _, w := range m.warnings {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) setWarning(source, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings[source] = message
}

func (m *Manager) clearWarning(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.warnings, source)
}

// StartRescan schedules periodic scans with the configured cron expression.
func (m *Manager) StartRescan(schedule string) error {
	if m.cron != nil {
		return fmt.Errorf("rescan already scheduled")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := m.Scan(ctx); err != nil {
			slog.Error("scheduled rescan failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse rescan schedule %q: %w", schedule, err)
	}

	c.Start()
	m.cron = c
	return nil
}

func (m *Manager) StopRescan() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}
