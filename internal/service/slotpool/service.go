// Package slotpool guards station capacity. All mutation funnels through the
// repository's atomic conditional decrement/increment; the service layers
// event emission and metrics on top without widening the race window.
package slotpool

import (
	"context"

	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/observability/telemetry"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type Service struct {
	stations  ports.StationRepository
	publisher ports.EventPublisher
	log       *zap.Logger
}

func NewService(stations ports.StationRepository, publisher ports.EventPublisher, log *zap.Logger) ports.SlotPool {
	return &Service{
		stations:  stations,
		publisher: publisher,
		log:       log,
	}
}

// Reserve returns false on capacity exhaustion. The FULL transition is
// detected inside the same atomic operation that caused it, so the
// STATION_OCCUPIED event fires exactly once per transition.
func (s *Service) Reserve(ctx context.Context, stationID string) (bool, error) {
	res, err := s.stations.ReserveSlot(ctx, stationID)
	if err != nil {
		telemetry.SlotReservationsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if !res.Reserved {
		telemetry.SlotReservationsTotal.WithLabelValues("exhausted").Inc()
		s.log.Debug("Station has no free slots", zap.String("station_id", stationID))
		return false, nil
	}

	telemetry.SlotReservationsTotal.WithLabelValues("reserved").Inc()
	s.log.Info("Slot reserved",
		zap.String("station_id", stationID),
		zap.Int("available_slots", res.AvailableSlots),
	)

	if res.BecameFull {
		s.publish(ctx, domain.NewStationOccupiedEvent(stationID, res.AvailableSlots, res.TotalSlots))
	}
	return true, nil
}

func (s *Service) Release(ctx context.Context, stationID string) error {
	res, err := s.stations.ReleaseSlot(ctx, stationID)
	if err != nil {
		return err
	}
	if !res.Released {
		// Duplicate compensation; nothing to undo.
		s.log.Debug("Release on full-capacity station ignored", zap.String("station_id", stationID))
		return nil
	}

	s.log.Info("Slot released",
		zap.String("station_id", stationID),
		zap.Int("available_slots", res.AvailableSlots),
	)

	if res.BecameAvailable {
		s.publish(ctx, domain.NewStationAvailableEvent(stationID, res.AvailableSlots, res.TotalSlots))
	}
	return nil
}

// publish is best-effort: capacity changes are already committed and a
// delivery problem must not surface as a pool failure.
func (s *Service) publish(ctx context.Context, evt domain.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("Failed to publish station event",
			zap.String("event_type", string(evt.Type)),
			zap.String("station_id", evt.StationID),
			zap.Error(err),
		)
	}
}
