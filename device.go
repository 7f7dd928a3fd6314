package syncagent

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Ownership classifies who an asset belongs to.
type Ownership string

const (
	OwnershipOrganization Ownership = "organization"
	OwnershipPersonal     Ownership = "personal"
)

// ParseOwnership normalizes a raw ownership value.
func ParseOwnership(raw string) (Ownership, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(OwnershipOrganization):
		return OwnershipOrganization, nil
	case string(OwnershipPersonal):
		return OwnershipPersonal, nil
	default:
		return "", errors.Errorf("invalid ownership %q", raw)
	}
}

// ImpactLevel is the ordered classification used for both business impact
// and criticality.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// ParseImpactLevel normalizes a raw impact value. Blank input defaults to low,
// matching how unset rows are bucketed on the dashboard side.
func ParseImpactLevel(raw string) (ImpactLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ImpactLow, nil
	case string(ImpactLow):
		return ImpactLow, nil
	case string(ImpactMedium):
		return ImpactMedium, nil
	case string(ImpactHigh):
		return ImpactHigh, nil
	case string(ImpactCritical):
		return ImpactCritical, nil
	default:
		return "", errors.Errorf("invalid impact level %q", raw)
	}
}

// SyncStatus tracks where a device sits in the reconciliation lifecycle.
type SyncStatus string

const (
	SyncStatusNotSynced    SyncStatus = "not_synced"
	SyncStatusSynced       SyncStatus = "synced"
	SyncStatusPartial      SyncStatus = "partial"
	SyncStatusNotAvailable SyncStatus = "not_available"
	SyncStatusFailed       SyncStatus = "failed"
)

// MonitoringStatus reflects whether the security agent is currently reporting.
type MonitoringStatus string

const (
	MonitoringYes MonitoringStatus = "yes"
	MonitoringNo  MonitoringStatus = "no"
)

// OSInfo holds operating system facts refreshed on a full sync.
type OSInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
	Kernel  string `json:"kernel,omitempty"`
}

// HardwareInfo holds hardware facts refreshed on a full sync.
type HardwareInfo struct {
	CPU    string `json:"cpu"`
	Cores  int    `json:"cores"`
	RAMMB  int64  `json:"ram_mb"`
	Serial string `json:"serial,omitempty"`
}

// SecurityStatus is the vulnerability exposure broken down by severity.
type SecurityStatus struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Device is one inventory record, keyed by hostname. State fields are mutated
// only by the sync engine; the importer creates records in not_synced state.
type Device struct {
	Hostname        string
	Ownership       Ownership
	BusinessImpact  ImpactLevel
	Criticality     ImpactLevel
	SyncStatus      SyncStatus
	LastSeen        *time.Time
	Monitoring      MonitoringStatus
	OS              *OSInfo
	Hardware        *HardwareInfo
	Security        SecurityStatus
	ComplianceScore *int
	SCAScore        *int
	SyncError       string
	NextRetryAt     *time.Time
	RetryAttempts   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SyncMode selects between a full reconciliation and the hourly light pass.
type SyncMode string

const (
	// SyncModeFull refreshes OS/hardware facts along with security state.
	SyncModeFull SyncMode = "full"
	// SyncModeLight refreshes vulnerability counts and the compliance score only.
	SyncModeLight SyncMode = "light"
)

// ParseSyncMode normalizes a raw mode value, e.g. from a CLI flag.
func ParseSyncMode(raw string) (SyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(SyncModeFull):
		return SyncModeFull, nil
	case string(SyncModeLight):
		return SyncModeLight, nil
	default:
		return "", errors.Errorf("invalid sync mode %q", raw)
	}
}

// SyncLogStatus is the recorded outcome of one sync attempt.
type SyncLogStatus string

const (
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogPartial SyncLogStatus = "partial"
	SyncLogFailed  SyncLogStatus = "failed"
)

// SyncLogEntry is one row of the append-only sync log. Entries are immutable
// once written and committed in the same transaction as the device update.
type SyncLogEntry struct {
	ID        string
	Hostname  string
	Timestamp time.Time
	Status    SyncLogStatus
	SyncType  SyncMode
	Message   string
	// RateWait is how long the attempt was held by the rate limiter before
	// the outbound query. Capacity delay is diagnostics, never a failure.
	RateWait time.Duration
}
