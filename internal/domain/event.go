package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType is the closed set of domain event kinds. Consumers dispatch on
// the tag explicitly; there is no reflection over payload types.
type EventType string

const (
	EventSessionStarted   EventType = "SESSION_STARTED"
	EventSessionCompleted EventType = "SESSION_COMPLETED"
	EventSessionFailed    EventType = "SESSION_FAILED"
	EventStationOccupied  EventType = "STATION_OCCUPIED"
	EventStationAvailable EventType = "STATION_AVAILABLE"
)

// Subject is the durable queue name for this event type; every subject has a
// matching dead-letter queue at DeadLetterSubject.
func (t EventType) Subject() string {
	switch t {
	case EventSessionStarted:
		return "sessions.started"
	case EventSessionCompleted:
		return "sessions.completed"
	case EventSessionFailed:
		return "sessions.failed"
	case EventStationOccupied:
		return "stations.occupied"
	case EventStationAvailable:
		return "stations.available"
	}
	return "events.unknown"
}

func (t EventType) DeadLetterSubject() string {
	return "dlq." + t.Subject()
}

// Event is an immutable record of one committed state transition, handed to
// the publisher exactly once per transition. Delivery downstream is
// at-least-once; consumers dedupe by EventID.
type Event struct {
	EventID   string          `json:"eventId"`
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	StationID string          `json:"stationId,omitempty"`
	VehicleID string          `json:"vehicleId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SessionStartedPayload struct {
	UserID string `json:"user_id"`
}

type SessionCompletedPayload struct {
	EnergyKwh decimal.Decimal `json:"energy_kwh"`
	Cost      decimal.Decimal `json:"cost"`
	Currency  string          `json:"currency"`
}

type SessionFailedPayload struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

type StationCapacityPayload struct {
	AvailableSlots int `json:"available_slots"`
	TotalSlots     int `json:"total_slots"`
}

func newEvent(t EventType, sessionID, stationID, vehicleID string, payload interface{}) Event {
	raw, _ := json.Marshal(payload)
	return Event{
		EventID:   uuid.New().String(),
		Type:      t,
		SessionID: sessionID,
		StationID: stationID,
		VehicleID: vehicleID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
}

func NewSessionStartedEvent(s *Session) Event {
	return newEvent(EventSessionStarted, s.ID, s.StationID, s.VehicleID,
		SessionStartedPayload{UserID: s.UserID})
}

func NewSessionCompletedEvent(s *Session) Event {
	return newEvent(EventSessionCompleted, s.ID, s.StationID, s.VehicleID,
		SessionCompletedPayload{EnergyKwh: s.EnergyKwh, Cost: s.Cost, Currency: s.Currency})
}

func NewSessionFailedEvent(sessionID, stationID, vehicleID, stage, reason string) Event {
	return newEvent(EventSessionFailed, sessionID, stationID, vehicleID,
		SessionFailedPayload{Stage: stage, Reason: reason})
}

func NewStationOccupiedEvent(stationID string, available, total int) Event {
	return newEvent(EventStationOccupied, "", stationID, "",
		StationCapacityPayload{AvailableSlots: available, TotalSlots: total})
}

func NewStationAvailableEvent(stationID string, available, total int) Event {
	return newEvent(EventStationAvailable, "", stationID, "",
		StationCapacityPayload{AvailableSlots: available, TotalSlots: total})
}
