// Package credit implements the consumed billing contract against Stripe.
// Every outbound call is bounded by a timeout and guarded by a circuit
// breaker; the orchestrator treats a timeout exactly like a denial.
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/ports"
)

type Config struct {
	APIKey         string
	CallTimeout    time.Duration
	BreakerName    string
	BreakerTimeout time.Duration
	MaxFailures    uint32
}

type StripeValidator struct {
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewStripeValidator(cfg Config, log *zap.Logger) ports.CreditValidator {
	stripe.Key = cfg.APIKey

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "stripe-credit"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Credit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &StripeValidator{
		timeout: cfg.CallTimeout,
		breaker: cb,
		log:     log,
	}
}

func (v *StripeValidator) Validate(ctx context.Context, userID string) (*ports.ValidationResult, error) {
	result, err := v.execute(ctx, func(ctx context.Context) (interface{}, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		return customer.Get(userID, params)
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return &ports.ValidationResult{Approved: false, Reason: "unknown billing account"}, nil
		}
		return nil, err
	}

	c := result.(*stripe.Customer)
	if c.Delinquent {
		return &ports.ValidationResult{Approved: false, Reason: "account delinquent"}, nil
	}
	return &ports.ValidationResult{Approved: true}, nil
}

func (v *StripeValidator) Charge(ctx context.Context, sessionID string, amount decimal.Decimal, currency string) (*ports.ChargeResult, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()

	result, err := v.execute(ctx, func(ctx context.Context) (interface{}, error) {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(cents),
			Currency: stripe.String(currency),
			Confirm:  stripe.Bool(true),
			Metadata: map[string]string{"session_id": sessionID},
		}
		params.Context = ctx
		return paymentintent.New(params)
	})
	if err != nil {
		return nil, err
	}

	pi := result.(*stripe.PaymentIntent)
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		v.log.Warn("Charge not completed",
			zap.String("session_id", sessionID),
			zap.String("status", string(pi.Status)),
		)
		return &ports.ChargeResult{Success: false}, nil
	}

	return &ports.ChargeResult{Success: true, TransactionRef: pi.ID}, nil
}

func (v *StripeValidator) Refund(ctx context.Context, transactionRef string) (*ports.RefundResult, error) {
	result, err := v.execute(ctx, func(ctx context.Context) (interface{}, error) {
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(transactionRef),
		}
		params.Context = ctx
		return refund.New(params)
	})
	if err != nil {
		return nil, err
	}

	r := result.(*stripe.Refund)
	return &ports.RefundResult{Success: r.Status != stripe.RefundStatusFailed}, nil
}

// execute applies the per-call timeout and the breaker to one Stripe call.
func (v *StripeValidator) execute(ctx context.Context, call func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	return v.breaker.Execute(func() (interface{}, error) {
		return call(ctx)
	})
}
