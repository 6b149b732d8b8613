package memory

import (
	"context"
	"sync"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type AlertRepository struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

var _ ports.AlertRepository = (*AlertRepository)(nil)

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{}
}

func (r *AlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, *alert)
	return nil
}

func (r *AlertRepository) FindByID(ctx context.Context, id string) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			cp := r.alerts[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *AlertRepository) ListUnacknowledged(ctx context.Context, limit int) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Alert
	for _, a := range r.alerts {
		if !a.Acknowledged {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *AlertRepository) Acknowledge(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			r.alerts[i].Acknowledged = true
			return nil
		}
	}
	return &domain.NotFoundError{Resource: "alert", ID: id}
}
