// Package credit gates scan work on the persisted credit balance.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
)

// ReasonInsufficient is reported when the balance cannot cover an entity.
const ReasonInsufficient = "insufficient_credits"

// CostPerEntity is the number of credits one entity scan consumes.
const CostPerEntity = 1

// Result is the outcome of TryConsume.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Balance int    `json:"balance"`
}

// Gate consumes one credit per processed entity.
type Gate struct {
	ledger repository.CreditRepository
	logger *slog.Logger
}

// NewGate creates a Gate over ledger.
func NewGate(ledger repository.CreditRepository, logger *slog.Logger) *Gate {
	return &Gate{
		ledger: ledger,
		logger: logger.With("component", "credit"),
	}
}

// TryConsume deducts the cost of one entity. A short balance is not an error:
// it is reported as an unsuccessful Result with ReasonInsufficient.
func (g *Gate) TryConsume(ctx context.Context) (Result, error) {
	ok, balance, err := g.ledger.Consume(ctx, CostPerEntity, "entity scan")
	if err != nil {
		return Result{}, fmt.Errorf("failed to consume credit: %w", err)
	}
	if !ok {
		g.logger.Warn("insufficient credits", "balance", balance, "required", CostPerEntity)
		return Result{Success: false, Reason: ReasonInsufficient, Balance: balance}, nil
	}
	return Result{Success: true, Balance: balance}, nil
}

// Refund returns the credit for an entity that was charged but never
// reached the portal.
func (g *Gate) Refund(ctx context.Context) error {
	balance, err := g.ledger.Add(ctx, CostPerEntity, "entity scan refund")
	if err != nil {
		return fmt.Errorf("failed to refund credit: %w", err)
	}
	g.logger.Debug("credit refunded", "balance", balance)
	return nil
}

// Balance returns the current balance.
func (g *Gate) Balance(ctx context.Context) (int, error) {
	return g.ledger.Balance(ctx)
}

// TopUp adds amount credits and returns the new balance.
func (g *Gate) TopUp(ctx context.Context, amount int, reason string) (int, error) {
	if reason == "" {
		reason = "top-up"
	}
	balance, err := g.ledger.Add(ctx, amount, reason)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidAmount) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}
	g.logger.Info("credits added", "amount", amount, "balance", balance)
	return balance, nil
}
