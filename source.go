package syncagent

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrAgentNotFound is returned by a SecuritySource when the external authority
// has no agent registered for the hostname. This is a permanent outcome.
var ErrAgentNotFound = errors.New("agent not found")

// AgentStatus is the connection state reported by the external authority.
type AgentStatus string

const (
	AgentActive       AgentStatus = "active"
	AgentDisconnected AgentStatus = "disconnected"
)

// ControlPosture captures the four security control flags that feed the
// compliance score.
type ControlPosture struct {
	Antivirus       bool `json:"antivirus"`
	Firewall        bool `json:"firewall"`
	DiskEncryption  bool `json:"disk_encryption"`
	PatchesUpToDate bool `json:"patches_up_to_date"`
}

// Satisfied returns how many of the control flags hold.
func (p ControlPosture) Satisfied() int {
	count := 0
	for _, ok := range [...]bool{p.Antivirus, p.Firewall, p.DiskEncryption, p.PatchesUpToDate} {
		if ok {
			count++
		}
	}
	return count
}

// ControlCount is the number of control flags tracked per agent.
const ControlCount = 4

// AgentRecord is the per-device state returned by the external authority.
type AgentRecord struct {
	ID              string
	Name            string
	Status          AgentStatus
	LastKeepAlive   time.Time
	OS              OSInfo
	Hardware        HardwareInfo
	Vulnerabilities SecurityStatus
	SCAScore        int
	Controls        ControlPosture
}

// SecuritySource queries per-device agent state from the external
// endpoint-security authority. The production implementation lives in
// internal/securityapi; tests substitute a double.
//
// LookupAgent returns ErrAgentNotFound when no agent is registered for the
// hostname. Any other error is treated as transient by the engine.
type SecuritySource interface {
	LookupAgent(ctx context.Context, hostname string) (*AgentRecord, error)
}
