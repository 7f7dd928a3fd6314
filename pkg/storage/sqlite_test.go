package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/assetwatch/syncagent"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "inventory.sqlite"))
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDevice(hostname string) *syncagent.Device {
	now := time.Now().Truncate(time.Second)
	return &syncagent.Device{
		Hostname:       hostname,
		Ownership:      syncagent.OwnershipOrganization,
		BusinessImpact: syncagent.ImpactMedium,
		Criticality:    syncagent.ImpactHigh,
		SyncStatus:     syncagent.SyncStatusNotSynced,
		Monitoring:     syncagent.MonitoringNo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreateAndLoadDevice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateDevice(ctx, testDevice("web-01")); err != nil {
		t.Fatalf("create device failed: %v", err)
	}
	dev, err := store.Device(ctx, "web-01")
	if err != nil {
		t.Fatalf("load device failed: %v", err)
	}
	if dev.Hostname != "web-01" || dev.SyncStatus != syncagent.SyncStatusNotSynced {
		t.Fatalf("unexpected device %+v", dev)
	}
	if dev.LastSeen != nil || dev.ComplianceScore != nil || dev.NextRetryAt != nil {
		t.Fatalf("nullable fields should start unset: %+v", dev)
	}
}

func TestCreateDeviceDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateDevice(ctx, testDevice("web-01")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := store.CreateDevice(ctx, testDevice("web-01"))
	if err != syncagent.ErrDeviceExists {
		t.Fatalf("expected ErrDeviceExists, got %v", err)
	}
}

func TestCreateDeviceDuplicateIgnoresCase(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateDevice(ctx, testDevice("WEB-01")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := store.CreateDevice(ctx, testDevice("web-01"))
	if err != syncagent.ErrDeviceExists {
		t.Fatalf("expected ErrDeviceExists for case variant, got %v", err)
	}
	dev, err := store.Device(ctx, "web-01")
	if err != nil {
		t.Fatalf("case-insensitive load failed: %v", err)
	}
	if dev.Hostname != "WEB-01" {
		t.Fatalf("stored hostname should keep its original case, got %q", dev.Hostname)
	}
}

func TestDeviceNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Device(context.Background(), "ghost"); err != syncagent.ErrUnknownDevice {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestApplySyncRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateDevice(ctx, testDevice("web-01")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	dev, err := store.Device(ctx, "web-01")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	score := 87
	sca := 92
	dev.SyncStatus = syncagent.SyncStatusSynced
	dev.LastSeen = &now
	dev.Monitoring = syncagent.MonitoringYes
	dev.OS = &syncagent.OSInfo{Name: "Ubuntu", Version: "24.04", Arch: "x86_64"}
	dev.Hardware = &syncagent.HardwareInfo{CPU: "Xeon", Cores: 16, RAMMB: 65536}
	dev.Security = syncagent.SecurityStatus{Critical: 1, High: 2, Medium: 3, Low: 4}
	dev.ComplianceScore = &score
	dev.SCAScore = &sca
	dev.UpdatedAt = now

	entry := &syncagent.SyncLogEntry{
		ID:        "entry-1",
		Hostname:  "web-01",
		Timestamp: now,
		Status:    syncagent.SyncLogSuccess,
		SyncType:  syncagent.SyncModeFull,
		Message:   "compliance score 87",
		RateWait:  120 * time.Millisecond,
	}
	if err := store.ApplySync(ctx, dev, entry); err != nil {
		t.Fatalf("apply sync failed: %v", err)
	}

	got, err := store.Device(ctx, "web-01")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got.SyncStatus != syncagent.SyncStatusSynced || got.Monitoring != syncagent.MonitoringYes {
		t.Fatalf("sync state not persisted: %+v", got)
	}
	if got.OS == nil || got.OS.Name != "Ubuntu" {
		t.Fatalf("os facts not persisted: %+v", got.OS)
	}
	if got.Hardware == nil || got.Hardware.Cores != 16 {
		t.Fatalf("hardware facts not persisted: %+v", got.Hardware)
	}
	if got.Security.Critical != 1 || got.Security.Low != 4 {
		t.Fatalf("vulnerability counts not persisted: %+v", got.Security)
	}
	if got.ComplianceScore == nil || *got.ComplianceScore != 87 {
		t.Fatalf("score not persisted: %v", got.ComplianceScore)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(now) {
		t.Fatalf("last seen not persisted: %v", got.LastSeen)
	}

	entries, err := store.SyncLogByHost(ctx, "web-01", 10)
	if err != nil {
		t.Fatalf("sync log query failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Status != syncagent.SyncLogSuccess || entries[0].SyncType != syncagent.SyncModeFull {
		t.Fatalf("unexpected log entry %+v", entries[0])
	}
	if entries[0].RateWait != 120*time.Millisecond {
		t.Fatalf("rate wait not persisted: %v", entries[0].RateWait)
	}
}

func TestApplySyncUnknownDeviceAppendsNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	dev := testDevice("ghost")
	entry := &syncagent.SyncLogEntry{
		ID: "entry-x", Hostname: "ghost", Timestamp: time.Now(),
		Status: syncagent.SyncLogFailed, SyncType: syncagent.SyncModeFull,
	}
	if err := store.ApplySync(ctx, dev, entry); err != syncagent.ErrUnknownDevice {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
	entries, err := store.SyncLogBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("log query failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("log entry leaked from aborted transaction: %+v", entries)
	}
}

func TestDueRetries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	for _, hostname := range []string{"due-1", "due-2", "future-1", "terminal-1"} {
		if err := store.CreateDevice(ctx, testDevice(hostname)); err != nil {
			t.Fatalf("create %s failed: %v", hostname, err)
		}
	}

	update := func(hostname string, status syncagent.SyncStatus, retryAt *time.Time) {
		dev, err := store.Device(ctx, hostname)
		if err != nil {
			t.Fatalf("load %s failed: %v", hostname, err)
		}
		dev.SyncStatus = status
		dev.NextRetryAt = retryAt
		dev.UpdatedAt = now
		entry := &syncagent.SyncLogEntry{
			ID: hostname + "-seed", Hostname: hostname, Timestamp: now,
			Status: syncagent.SyncLogPartial, SyncType: syncagent.SyncModeFull,
		}
		if err := store.ApplySync(ctx, dev, entry); err != nil {
			t.Fatalf("apply %s failed: %v", hostname, err)
		}
	}
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	update("due-1", syncagent.SyncStatusPartial, &past)
	update("due-2", syncagent.SyncStatusFailed, &past)
	update("future-1", syncagent.SyncStatusPartial, &future)
	update("terminal-1", syncagent.SyncStatusNotAvailable, nil)

	due, err := store.DueRetries(ctx, now, 10)
	if err != nil {
		t.Fatalf("due retries failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due hostnames, got %v", due)
	}
	seen := map[string]bool{}
	for _, hostname := range due {
		seen[hostname] = true
	}
	if !seen["due-1"] || !seen["due-2"] {
		t.Fatalf("unexpected due set %v", due)
	}
}

func TestLightSyncCandidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	for _, hostname := range []string{"synced-1", "pending-1"} {
		if err := store.CreateDevice(ctx, testDevice(hostname)); err != nil {
			t.Fatalf("create %s failed: %v", hostname, err)
		}
	}
	dev, err := store.Device(ctx, "synced-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	dev.SyncStatus = syncagent.SyncStatusSynced
	dev.UpdatedAt = now
	if err := store.ApplySync(ctx, dev, &syncagent.SyncLogEntry{
		ID: "seed", Hostname: "synced-1", Timestamp: now,
		Status: syncagent.SyncLogSuccess, SyncType: syncagent.SyncModeFull,
	}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	candidates, err := store.LightSyncCandidates(ctx, 10)
	if err != nil {
		t.Fatalf("candidates query failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0] != "synced-1" {
		t.Fatalf("unexpected candidates %v", candidates)
	}
}

func TestSyncLogBetween(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	if err := store.CreateDevice(ctx, testDevice("web-01")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		dev, err := store.Device(ctx, "web-01")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		ts := base.Add(time.Duration(i) * time.Hour)
		dev.UpdatedAt = ts
		entry := &syncagent.SyncLogEntry{
			ID: string(rune('a' + i)), Hostname: "web-01", Timestamp: ts,
			Status: syncagent.SyncLogSuccess, SyncType: syncagent.SyncModeLight,
		}
		if err := store.ApplySync(ctx, dev, entry); err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
	}

	entries, err := store.SyncLogBetween(ctx, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("between query failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in window, got %d", len(entries))
	}
	if !entries[0].Timestamp.Before(entries[1].Timestamp) {
		t.Fatalf("entries not ordered oldest first: %+v", entries)
	}
}

func TestListDevicesOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, hostname := range []string{"zeta", "alpha", "mike"} {
		if err := store.CreateDevice(ctx, testDevice(hostname)); err != nil {
			t.Fatalf("create %s failed: %v", hostname, err)
		}
	}
	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(devices) != 3 || devices[0].Hostname != "alpha" || devices[2].Hostname != "zeta" {
		t.Fatalf("unexpected order: %v", []string{devices[0].Hostname, devices[1].Hostname, devices[2].Hostname})
	}
}
