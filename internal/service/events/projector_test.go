package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/mocks"
)

func TestProjector_ProjectsStationOccupied(t *testing.T) {
	// Arrange
	mq := mocks.NewMockMessageQueue()
	cache := mocks.NewMockCache()
	projector := NewStationStatusProjector(mq, cache, nil, newTestLogger())
	if err := projector.Start(); err != nil {
		t.Fatalf("start projector: %v", err)
	}

	evt := domain.NewStationOccupiedEvent("station-1", 0, 4)
	data, _ := json.Marshal(evt)

	// Act: the mock queue dispatches to subscribers synchronously
	if err := mq.Publish("stations.occupied", data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Assert
	raw, err := cache.Get(context.Background(), "station:station-1:status")
	if err != nil {
		t.Fatalf("expected a projection, got %v", err)
	}
	var status map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		t.Fatalf("decode projection: %v", err)
	}
	if status["status"] != string(domain.StationStatusFull) {
		t.Errorf("expected FULL, got %v", status["status"])
	}
	if status["available_slots"] != float64(0) {
		t.Errorf("expected 0 available slots, got %v", status["available_slots"])
	}
}

func TestProjector_StationAvailableOverwrites(t *testing.T) {
	// Arrange
	mq := mocks.NewMockMessageQueue()
	cache := mocks.NewMockCache()
	projector := NewStationStatusProjector(mq, cache, nil, newTestLogger())
	projector.Start()

	occupied, _ := json.Marshal(domain.NewStationOccupiedEvent("station-1", 0, 4))
	available, _ := json.Marshal(domain.NewStationAvailableEvent("station-1", 1, 4))

	// Act
	mq.Publish("stations.occupied", occupied)
	mq.Publish("stations.available", available)

	// Assert
	raw, _ := cache.Get(context.Background(), "station:station-1:status")
	var status map[string]interface{}
	json.Unmarshal([]byte(raw), &status)
	if status["status"] != string(domain.StationStatusActive) {
		t.Errorf("expected ACTIVE after the station freed up, got %v", status["status"])
	}
}

func TestProjector_DedupesByEventID(t *testing.T) {
	// Arrange
	mq := mocks.NewMockMessageQueue()
	cache := mocks.NewMockCache()
	projector := NewStationStatusProjector(mq, cache, nil, newTestLogger())
	projector.Start()

	evt := domain.NewStationOccupiedEvent("station-1", 0, 4)
	first, _ := json.Marshal(evt)

	mq.Publish("stations.occupied", first)

	// The second delivery of the same event must not clobber newer state.
	newer, _ := json.Marshal(domain.NewStationAvailableEvent("station-1", 2, 4))
	mq.Publish("stations.available", newer)
	mq.Publish("stations.occupied", first)

	// Assert
	raw, _ := cache.Get(context.Background(), "station:station-1:status")
	var status map[string]interface{}
	json.Unmarshal([]byte(raw), &status)
	if status["status"] != string(domain.StationStatusActive) {
		t.Errorf("expected the duplicate skipped, got %v", status["status"])
	}
}
