package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zenithax-cc/taotie/internal/collector/block"
	"github.com/zenithax-cc/taotie/internal/collector/raid"
	"github.com/zenithax-cc/taotie/internal/config"
	"github.com/zenithax-cc/taotie/internal/store"
)

type fakeScanner struct {
	snap *block.Snapshot
	err  error
}

func (f *fakeScanner) Collect(ctx context.Context) (*block.Snapshot, error) {
	return f.snap, f.err
}

type fakeAdapter struct {
	name string
	snap *raid.Snapshot
	err  error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Collect(ctx context.Context) (*raid.Snapshot, error) {
	return f.snap, f.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.StorcliPath = ""
	cfg.Sas3ircuPath = ""
	return cfg
}

func TestManagerScan(t *testing.T) {
	scanner := &fakeScanner{snap: &block.Snapshot{Devices: []*block.BlockDevice{
		blockDev("/dev/sdb", "WMC6N0K8XYZ1", "HGST HUS726T2TALA604", 2000398934016),
	}}}
	adapter := &fakeAdapter{name: "storcli", snap: &raid.Snapshot{
		Source: "storcli",
		Drives: []*raid.PhysicalDrive{
			raidDrive(0, 252, 0, "JBOD", "WMC6N0K8XYZ1", "HGST HUS726T2TALA604", 2000000000000),
		},
	}}

	m := NewManagerWith(testConfig(), scanner, []raid.Adapter{adapter})

	var published *View
	m.Subscribe(func(v *View) { published = v })

	view, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(view.Devices) != 1 {
		t.Fatalf("got %d devices", len(view.Devices))
	}
	if len(view.Warnings) != 0 {
		t.Errorf("warnings = %v", view.Warnings)
	}
	if published == nil {
		t.Fatal("subscriber not notified")
	}
	if len(published.Devices) != 1 {
		t.Errorf("published view carries %d devices", len(published.Devices))
	}

	dev, ok := m.Get("WMC6N0K8XYZ1")
	if !ok {
		t.Fatal("device not retrievable by id")
	}
	if !dev.EraseAllowed {
		t.Error("device should be eligible")
	}
}

func TestManagerScanDegradesOnBlockFailure(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("lsblk exploded")}
	adapter := &fakeAdapter{name: "storcli", snap: &raid.Snapshot{
		Source: "storcli",
		Drives: []*raid.PhysicalDrive{
			raidDrive(0, 252, 0, "JBOD", "SER1", "M1", 2000000000000),
		},
	}}

	m := NewManagerWith(testConfig(), scanner, []raid.Adapter{adapter})

	view, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan should degrade, not fail: %v", err)
	}

	if len(view.Devices) != 1 {
		t.Fatalf("raid side should still surface, got %d devices", len(view.Devices))
	}
	if view.Devices[0].Resolved() {
		t.Error("drive cannot be resolved without the block snapshot")
	}
	if len(view.Warnings) != 1 {
		t.Errorf("expected one block warning, got %v", view.Warnings)
	}
}

func TestManagerAdapterWarningLifecycle(t *testing.T) {
	scanner := &fakeScanner{snap: &block.Snapshot{}}
	adapter := &fakeAdapter{name: "storcli", err: &raid.ParseError{
		Tool: "storcli", Context: "show J", Err: errors.New("bad json"),
	}}

	m := NewManagerWith(testConfig(), scanner, []raid.Adapter{adapter})

	if _, err := m.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(m.Warnings()) != 1 {
		t.Fatalf("parse failure must surface as warning: %v", m.Warnings())
	}

	// The failure heals on the next successful pass of the same source.
	adapter.err = nil
	adapter.snap = &raid.Snapshot{Source: "storcli"}
	if _, err := m.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(m.Warnings()) != 0 {
		t.Errorf("warning not cleared: %v", m.Warnings())
	}

	// An absent tool is benign and never warns.
	adapter.snap = nil
	adapter.err = raid.ErrUnavailable
	if _, err := m.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(m.Warnings()) != 0 {
		t.Errorf("unavailable adapter must stay quiet: %v", m.Warnings())
	}
}

func TestManagerAttachResultSurvivesRescan(t *testing.T) {
	scanner := &fakeScanner{snap: &block.Snapshot{Devices: []*block.BlockDevice{
		blockDev("/dev/sda", "SER-A", "MA", 1000000000000),
	}}}

	m := NewManagerWith(testConfig(), scanner, nil)
	if _, err := m.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	res := &store.OperationResult{
		ID:       "op-1",
		DeviceID: "SER-A",
		Kind:     store.KindSmartQuery,
		Outcome:  store.OutcomeSuccess,
		EndedAt:  time.Now(),
	}
	m.AttachResult(res)

	dev, _ := m.Get("SER-A")
	if dev.LastResult == nil || dev.LastResult.ID != "op-1" {
		t.Fatal("result not attached")
	}

	// Devices are rebuilt per scan; the last result follows the identity.
	if _, err := m.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	dev, _ = m.Get("SER-A")
	if dev.LastResult == nil || dev.LastResult.ID != "op-1" {
		t.Error("last result lost across rescan")
	}
}

func TestManagerFresh(t *testing.T) {
	scanner := &fakeScanner{snap: &block.Snapshot{Devices: []*block.BlockDevice{
		blockDev("/dev/sda", "SER-A", "MA", 1000000000000),
	}}}
	m := NewManagerWith(testConfig(), scanner, nil)

	dev, err := m.Fresh(context.Background(), "SER-A")
	if err != nil {
		t.Fatalf("Fresh: %v", err)
	}
	if dev.ID != "SER-A" {
		t.Errorf("got %q", dev.ID)
	}

	if _, err := m.Fresh(context.Background(), "GONE"); err == nil {
		t.Error("expected error for absent device")
	}
}
