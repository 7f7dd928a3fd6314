// Package storage is the SQLite-backed inventory store: durable device
// records plus the append-only sync log.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/assetwatch/syncagent"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	hostname          TEXT PRIMARY KEY COLLATE NOCASE,
	ownership         TEXT NOT NULL,
	business_impact   TEXT NOT NULL,
	criticality       TEXT NOT NULL,
	sync_status       TEXT NOT NULL,
	last_seen         INTEGER,
	monitoring_status TEXT NOT NULL DEFAULT 'no',
	os_info           TEXT,
	hardware_info     TEXT,
	vuln_critical     INTEGER NOT NULL DEFAULT 0,
	vuln_high         INTEGER NOT NULL DEFAULT 0,
	vuln_medium       INTEGER NOT NULL DEFAULT 0,
	vuln_low          INTEGER NOT NULL DEFAULT 0,
	compliance_score  INTEGER,
	sca_score         INTEGER,
	sync_error        TEXT NOT NULL DEFAULT '',
	next_retry_at     INTEGER,
	retry_attempts    INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           TEXT PRIMARY KEY,
	hostname     TEXT NOT NULL COLLATE NOCASE,
	timestamp    INTEGER NOT NULL,
	status       TEXT NOT NULL,
	sync_type    TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	rate_wait_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_log_host_time ON sync_log(hostname, timestamp);
CREATE INDEX IF NOT EXISTS idx_sync_log_time ON sync_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_devices_next_retry ON devices(next_retry_at) WHERE next_retry_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_devices_sync_status ON devices(sync_status);
`

// SQLiteStore implements syncagent.Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ syncagent.Store = (*SQLiteStore)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: create database dir failed")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: open sqlite failed")
	}
	if err := configure(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "storage: ensure schema failed")
	}
	log.Debug().Str("path", path).Msg("storage: sqlite opened")
	return &SQLiteStore{db: db}, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout=60000;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "storage: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateDevice inserts a new inventory record. Hostname is the primary key
// and compares case-insensitively; a clash is reported as
// syncagent.ErrDeviceExists.
func (s *SQLiteStore) CreateDevice(ctx context.Context, dev *syncagent.Device) error {
	if dev == nil {
		return pkgerrors.New("storage: device is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "storage: begin create device failed")
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM devices WHERE hostname=?", dev.Hostname).Scan(&exists)
	if err != nil {
		return pkgerrors.Wrap(err, "storage: check hostname failed")
	}
	if exists > 0 {
		return syncagent.ErrDeviceExists
	}

	query := `INSERT INTO devices (
		hostname, ownership, business_impact, criticality, sync_status,
		last_seen, monitoring_status, os_info, hardware_info,
		vuln_critical, vuln_high, vuln_medium, vuln_low,
		compliance_score, sca_score, sync_error, next_retry_at, retry_attempts,
		created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	args, err := deviceArgs(dev)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return pkgerrors.Wrapf(err, "storage: insert device %s failed", dev.Hostname)
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "storage: commit create device failed")
	}
	return nil
}

// Device loads one record by hostname.
func (s *SQLiteStore) Device(ctx context.Context, hostname string) (*syncagent.Device, error) {
	row := s.db.QueryRowContext(ctx, selectDevices+" WHERE hostname=?", hostname)
	dev, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, syncagent.ErrUnknownDevice
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "storage: load device %s failed", hostname)
	}
	return dev, nil
}

// ListDevices returns every record ordered by hostname.
func (s *SQLiteStore) ListDevices(ctx context.Context) ([]*syncagent.Device, error) {
	rows, err := s.db.QueryContext(ctx, selectDevices+" ORDER BY hostname")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: list devices failed")
	}
	defer rows.Close()
	var devices []*syncagent.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan device failed")
		}
		devices = append(devices, dev)
	}
	return devices, rows.Err()
}

// ApplySync writes the updated device state and appends the log entry in one
// transaction. Either both land or neither does.
func (s *SQLiteStore) ApplySync(ctx context.Context, dev *syncagent.Device, entry *syncagent.SyncLogEntry) error {
	if dev == nil || entry == nil {
		return pkgerrors.New("storage: device and log entry are required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "storage: begin apply sync failed")
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE devices SET
		sync_status=?, last_seen=?, monitoring_status=?, os_info=?, hardware_info=?,
		vuln_critical=?, vuln_high=?, vuln_medium=?, vuln_low=?,
		compliance_score=?, sca_score=?, sync_error=?, next_retry_at=?, retry_attempts=?,
		updated_at=?
	WHERE hostname=?`
	osJSON, hwJSON, err := factsJSON(dev)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query,
		string(dev.SyncStatus),
		nullTime(dev.LastSeen),
		string(dev.Monitoring),
		osJSON,
		hwJSON,
		dev.Security.Critical, dev.Security.High, dev.Security.Medium, dev.Security.Low,
		nullInt(dev.ComplianceScore),
		nullInt(dev.SCAScore),
		dev.SyncError,
		nullTime(dev.NextRetryAt),
		dev.RetryAttempts,
		dev.UpdatedAt.Unix(),
		dev.Hostname,
	)
	if err != nil {
		return pkgerrors.Wrapf(err, "storage: update device %s failed", dev.Hostname)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "storage: rows affected failed")
	}
	if affected == 0 {
		return syncagent.ErrUnknownDevice
	}

	logQuery := `INSERT INTO sync_log (id, hostname, timestamp, status, sync_type, message, rate_wait_ms)
		VALUES (?,?,?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, logQuery,
		entry.ID,
		entry.Hostname,
		entry.Timestamp.Unix(),
		string(entry.Status),
		string(entry.SyncType),
		entry.Message,
		entry.RateWait.Milliseconds(),
	); err != nil {
		return pkgerrors.Wrapf(err, "storage: append sync log for %s failed", entry.Hostname)
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "storage: commit apply sync failed")
	}
	return nil
}

// DueRetries returns hostnames whose scheduled retry time has arrived.
// Terminal not_available records never carry next_retry_at, so the status
// filter is belt and braces.
func (s *SQLiteStore) DueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `SELECT hostname FROM devices
		WHERE next_retry_at IS NOT NULL AND next_retry_at <= ? AND sync_status != ?
		ORDER BY next_retry_at LIMIT ?`
	return s.hostnames(ctx, query, now.Unix(), string(syncagent.SyncStatusNotAvailable), hardLimit(limit))
}

// LightSyncCandidates returns hostnames eligible for the periodic light pass.
func (s *SQLiteStore) LightSyncCandidates(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT hostname FROM devices WHERE sync_status = ? ORDER BY hostname LIMIT ?`
	return s.hostnames(ctx, query, string(syncagent.SyncStatusSynced), hardLimit(limit))
}

func (s *SQLiteStore) hostnames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: hostname query failed")
	}
	defer rows.Close()
	var result []string
	for rows.Next() {
		var hostname string
		if err := rows.Scan(&hostname); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan hostname failed")
		}
		result = append(result, hostname)
	}
	return result, rows.Err()
}

// SyncLogByHost returns the newest entries for one device.
func (s *SQLiteStore) SyncLogByHost(ctx context.Context, hostname string, limit int) ([]syncagent.SyncLogEntry, error) {
	query := selectLog + " WHERE hostname=? ORDER BY timestamp DESC LIMIT ?"
	return s.logEntries(ctx, query, hostname, hardLimit(limit))
}

// SyncLogBetween returns entries in [from, to), oldest first.
func (s *SQLiteStore) SyncLogBetween(ctx context.Context, from, to time.Time) ([]syncagent.SyncLogEntry, error) {
	query := selectLog + " WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp"
	return s.logEntries(ctx, query, from.Unix(), to.Unix())
}

func (s *SQLiteStore) logEntries(ctx context.Context, query string, args ...any) ([]syncagent.SyncLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: sync log query failed")
	}
	defer rows.Close()
	var entries []syncagent.SyncLogEntry
	for rows.Next() {
		var (
			entry      syncagent.SyncLogEntry
			ts         int64
			status     string
			syncType   string
			rateWaitMS int64
		)
		if err := rows.Scan(&entry.ID, &entry.Hostname, &ts, &status, &syncType, &entry.Message, &rateWaitMS); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan sync log failed")
		}
		entry.Timestamp = time.Unix(ts, 0).UTC()
		entry.Status = syncagent.SyncLogStatus(status)
		entry.SyncType = syncagent.SyncMode(syncType)
		entry.RateWait = time.Duration(rateWaitMS) * time.Millisecond
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const selectDevices = `SELECT
	hostname, ownership, business_impact, criticality, sync_status,
	last_seen, monitoring_status, os_info, hardware_info,
	vuln_critical, vuln_high, vuln_medium, vuln_low,
	compliance_score, sca_score, sync_error, next_retry_at, retry_attempts,
	created_at, updated_at
FROM devices`

const selectLog = `SELECT id, hostname, timestamp, status, sync_type, message, rate_wait_ms FROM sync_log`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*syncagent.Device, error) {
	var (
		dev        syncagent.Device
		ownership  string
		impact     string
		crit       string
		status     string
		monitoring string
		lastSeen   sql.NullInt64
		osJSON     sql.NullString
		hwJSON     sql.NullString
		score      sql.NullInt64
		sca        sql.NullInt64
		nextRetry  sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&dev.Hostname, &ownership, &impact, &crit, &status,
		&lastSeen, &monitoring, &osJSON, &hwJSON,
		&dev.Security.Critical, &dev.Security.High, &dev.Security.Medium, &dev.Security.Low,
		&score, &sca, &dev.SyncError, &nextRetry, &dev.RetryAttempts,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	dev.Ownership = syncagent.Ownership(ownership)
	dev.BusinessImpact = syncagent.ImpactLevel(impact)
	dev.Criticality = syncagent.ImpactLevel(crit)
	dev.SyncStatus = syncagent.SyncStatus(status)
	dev.Monitoring = syncagent.MonitoringStatus(monitoring)
	dev.CreatedAt = time.Unix(createdAt, 0).UTC()
	dev.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if lastSeen.Valid {
		ts := time.Unix(lastSeen.Int64, 0).UTC()
		dev.LastSeen = &ts
	}
	if nextRetry.Valid {
		ts := time.Unix(nextRetry.Int64, 0).UTC()
		dev.NextRetryAt = &ts
	}
	if score.Valid {
		v := int(score.Int64)
		dev.ComplianceScore = &v
	}
	if sca.Valid {
		v := int(sca.Int64)
		dev.SCAScore = &v
	}
	if osJSON.Valid && osJSON.String != "" {
		var info syncagent.OSInfo
		if err := json.Unmarshal([]byte(osJSON.String), &info); err != nil {
			return nil, pkgerrors.Wrapf(err, "storage: decode os_info for %s failed", dev.Hostname)
		}
		dev.OS = &info
	}
	if hwJSON.Valid && hwJSON.String != "" {
		var info syncagent.HardwareInfo
		if err := json.Unmarshal([]byte(hwJSON.String), &info); err != nil {
			return nil, pkgerrors.Wrapf(err, "storage: decode hardware_info for %s failed", dev.Hostname)
		}
		dev.Hardware = &info
	}
	return &dev, nil
}

func deviceArgs(dev *syncagent.Device) ([]any, error) {
	osJSON, hwJSON, err := factsJSON(dev)
	if err != nil {
		return nil, err
	}
	return []any{
		dev.Hostname,
		string(dev.Ownership),
		string(dev.BusinessImpact),
		string(dev.Criticality),
		string(dev.SyncStatus),
		nullTime(dev.LastSeen),
		string(dev.Monitoring),
		osJSON,
		hwJSON,
		dev.Security.Critical, dev.Security.High, dev.Security.Medium, dev.Security.Low,
		nullInt(dev.ComplianceScore),
		nullInt(dev.SCAScore),
		dev.SyncError,
		nullTime(dev.NextRetryAt),
		dev.RetryAttempts,
		dev.CreatedAt.Unix(),
		dev.UpdatedAt.Unix(),
	}, nil
}

func factsJSON(dev *syncagent.Device) (osJSON, hwJSON any, err error) {
	if dev.OS != nil {
		data, err := json.Marshal(dev.OS)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "storage: encode os_info failed")
		}
		osJSON = string(data)
	}
	if dev.Hardware != nil {
		data, err := json.Marshal(dev.Hardware)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "storage: encode hardware_info failed")
		}
		hwJSON = string(data)
	}
	return osJSON, hwJSON, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func hardLimit(limit int) int {
	if limit <= 0 {
		return 500
	}
	return limit
}
