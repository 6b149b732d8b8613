package domain

import "time"

type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is a manual-intervention record. The orchestrator raises one when a
// compensating action fails and the system can no longer restore consistency
// on its own.
type Alert struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	Severity     AlertSeverity `json:"severity"`
	Saga         string        `json:"saga"`
	Action       string        `json:"action"`
	SessionID    string        `json:"session_id,omitempty" gorm:"index"`
	StationID    string        `json:"station_id,omitempty" gorm:"index"`
	Message      string        `json:"message"`
	Acknowledged bool          `json:"acknowledged"`
	CreatedAt    time.Time     `json:"created_at"`
}
