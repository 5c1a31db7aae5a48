package models

import "time"

// TriggerType is the domain event kind a notification rule reacts to.
type TriggerType string

const (
	TriggerBackupFailed         TriggerType = "backup_failed"
	TriggerBackupCompleted      TriggerType = "backup_completed"
	TriggerAgentOffline         TriggerType = "agent_offline"
	TriggerAgentOnline          TriggerType = "agent_online"
	TriggerSLABreach            TriggerType = "sla_breach"
	TriggerMaintenanceStarted   TriggerType = "maintenance_started"
	TriggerMaintenanceEnded     TriggerType = "maintenance_ended"
	TriggerStorageQuotaExceeded TriggerType = "storage_quota_exceeded"
)

var TriggerTypes = []TriggerType{
	TriggerBackupFailed,
	TriggerBackupCompleted,
	TriggerAgentOffline,
	TriggerAgentOnline,
	TriggerSLABreach,
	TriggerMaintenanceStarted,
	TriggerMaintenanceEnded,
	TriggerStorageQuotaExceeded,
}

func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is a domain signal emitted by an external source (backup agents,
// SLA monitors, the maintenance scheduler).
type Event struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	TriggerType    TriggerType            `json:"trigger_type"`
	ScopeKey       string                 `json:"scope_key"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Data           map[string]interface{} `json:"data,omitempty"`
}
