package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/adapter/queue"
	"github.com/voltgrid/chargeflow/internal/adapter/websocket"
	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

const dedupeTTL = 24 * time.Hour

// StationStatusProjector is a downstream consumer of the station and session
// queues. It keeps the current availability of every station in the cache
// and pushes a status frame to connected dashboard clients. It is idempotent
// by event ID, as the at-least-once delivery contract requires.
type StationStatusProjector struct {
	mq    queue.MessageQueue
	cache ports.Cache
	hub   *websocket.Hub
	log   *zap.Logger
}

func NewStationStatusProjector(mq queue.MessageQueue, cache ports.Cache, hub *websocket.Hub, log *zap.Logger) *StationStatusProjector {
	return &StationStatusProjector{
		mq:    mq,
		cache: cache,
		hub:   hub,
		log:   log,
	}
}

// Start subscribes to every event subject the projector cares about.
func (p *StationStatusProjector) Start() error {
	subjects := []domain.EventType{
		domain.EventStationOccupied,
		domain.EventStationAvailable,
		domain.EventSessionStarted,
		domain.EventSessionCompleted,
		domain.EventSessionFailed,
	}
	for _, t := range subjects {
		if err := p.mq.Subscribe(t.Subject(), p.handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t.Subject(), err)
		}
	}
	return nil
}

func (p *StationStatusProjector) handle(data []byte) error {
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	ctx := context.Background()

	if p.seen(ctx, evt.EventID) {
		p.log.Debug("Duplicate event skipped", zap.String("event_id", evt.EventID))
		return nil
	}

	// Explicit dispatch on the event tag; each arm knows its payload type.
	switch evt.Type {
	case domain.EventStationOccupied:
		return p.projectCapacity(ctx, evt, string(domain.StationStatusFull))
	case domain.EventStationAvailable:
		return p.projectCapacity(ctx, evt, string(domain.StationStatusActive))
	case domain.EventSessionStarted, domain.EventSessionCompleted, domain.EventSessionFailed:
		p.broadcast(evt, nil)
		return nil
	default:
		p.log.Warn("Unknown event type", zap.String("type", string(evt.Type)))
		return nil
	}
}

func (p *StationStatusProjector) projectCapacity(ctx context.Context, evt domain.Event, status string) error {
	var payload domain.StationCapacityPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return fmt.Errorf("decode capacity payload: %w", err)
	}

	key := "station:" + evt.StationID + ":status"
	value, err := json.Marshal(map[string]interface{}{
		"station_id":      evt.StationID,
		"status":          status,
		"available_slots": payload.AvailableSlots,
		"total_slots":     payload.TotalSlots,
	})
	if err != nil {
		return fmt.Errorf("encode station status: %w", err)
	}
	if err := p.cache.Set(ctx, key, string(value), 0); err != nil {
		return fmt.Errorf("project station status: %w", err)
	}

	p.broadcast(evt, &payload)
	return nil
}

func (p *StationStatusProjector) broadcast(evt domain.Event, capacity *domain.StationCapacityPayload) {
	if p.hub == nil {
		return
	}
	frame := map[string]interface{}{
		"type":       evt.Type,
		"station_id": evt.StationID,
		"session_id": evt.SessionID,
		"timestamp":  evt.Timestamp,
	}
	if capacity != nil {
		frame["available_slots"] = capacity.AvailableSlots
		frame["total_slots"] = capacity.TotalSlots
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	p.hub.Broadcast(data)
}

func (p *StationStatusProjector) seen(ctx context.Context, eventID string) bool {
	key := "evt:" + eventID
	if _, err := p.cache.Get(ctx, key); err == nil {
		return true
	}
	if err := p.cache.Set(ctx, key, "1", dedupeTTL); err != nil {
		p.log.Warn("Failed to record event id for dedupe", zap.Error(err))
	}
	return false
}
