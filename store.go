package syncagent

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrUnknownDevice is returned when a hostname has no inventory record.
var ErrUnknownDevice = errors.New("unknown device")

// ErrDeviceExists is returned when creating a device whose hostname is
// already taken.
var ErrDeviceExists = errors.New("device already exists")

// Store is the durable inventory behind the engine: device records plus the
// append-only sync log. The SQLite implementation lives in pkg/storage.
type Store interface {
	// CreateDevice inserts a new record. ErrDeviceExists on hostname clash.
	CreateDevice(ctx context.Context, dev *Device) error
	// Device returns the record for a hostname, or ErrUnknownDevice.
	Device(ctx context.Context, hostname string) (*Device, error)
	// ListDevices returns all records ordered by hostname.
	ListDevices(ctx context.Context) ([]*Device, error)

	// ApplySync commits the updated device state and the log entry for one
	// sync attempt atomically: both land or neither does.
	ApplySync(ctx context.Context, dev *Device, entry *SyncLogEntry) error

	// DueRetries returns hostnames whose next_retry_at is at or before now.
	DueRetries(ctx context.Context, now time.Time, limit int) ([]string, error)
	// LightSyncCandidates returns hostnames eligible for the periodic light
	// pass, i.e. devices currently synced.
	LightSyncCandidates(ctx context.Context, limit int) ([]string, error)

	// SyncLogByHost returns the newest log entries for a device.
	SyncLogByHost(ctx context.Context, hostname string, limit int) ([]SyncLogEntry, error)
	// SyncLogBetween returns entries in [from, to), oldest first.
	SyncLogBetween(ctx context.Context, from, to time.Time) ([]SyncLogEntry, error)

	Close() error
}
