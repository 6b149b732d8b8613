package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// ValidationResult is the billing provider's answer to "may this user start
// a session". Approved=false with a reason is a denial, not an error.
type ValidationResult struct {
	Approved bool
	Reason   string
}

// ChargeResult carries the provider's transaction reference, needed for a
// later refund.
type ChargeResult struct {
	Success        bool
	TransactionRef string
}

type RefundResult struct {
	Success bool
}

// CreditValidator is the consumed billing contract. Implementations must
// bound every call with a timeout; the orchestrator treats a timeout exactly
// like an explicit failure and does not retry.
type CreditValidator interface {
	Validate(ctx context.Context, userID string) (*ValidationResult, error)
	Charge(ctx context.Context, sessionID string, amount decimal.Decimal, currency string) (*ChargeResult, error)
	Refund(ctx context.Context, transactionRef string) (*RefundResult, error)
}
