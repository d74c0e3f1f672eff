package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
)

// CreditLedger reads and tops up the credit balance.
type CreditLedger interface {
	Balance(ctx context.Context) (int, error)
	TopUp(ctx context.Context, amount int, reason string) (int, error)
}

// CreditHandler handles the credit balance endpoints.
type CreditHandler struct {
	ledger      CreditLedger
	gateEnabled bool
	logger      *slog.Logger
}

// NewCreditHandler creates a credit handler.
func NewCreditHandler(ledger CreditLedger, gateEnabled bool, logger *slog.Logger) *CreditHandler {
	return &CreditHandler{ledger: ledger, gateEnabled: gateEnabled, logger: logger.With("component", "credit-handler")}
}

// CreditsOutput reports the balance.
type CreditsOutput struct {
	Body struct {
		Balance     int  `json:"balance"`
		GateEnabled bool `json:"gate_enabled"`
	}
}

// GetCredits returns the current balance.
func (h *CreditHandler) GetCredits(ctx context.Context, input *struct{}) (*CreditsOutput, error) {
	bal, err := h.ledger.Balance(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read balance", err)
	}
	return h.output(bal), nil
}

// TopUpInput adds credits.
type TopUpInput struct {
	Body struct {
		Amount int    `json:"amount" minimum:"1" validate:"gt=0" doc:"Credits to add"`
		Reason string `json:"reason,omitempty" validate:"max=200" doc:"Ledger note"`
	}
}

// TopUpCredits adds credits to the ledger.
func (h *CreditHandler) TopUpCredits(ctx context.Context, input *TopUpInput) (*CreditsOutput, error) {
	if err := validateStruct(input.Body); err != nil {
		return nil, err
	}
	bal, err := h.ledger.TopUp(ctx, input.Body.Amount, input.Body.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidAmount) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to add credits", err)
	}
	h.logger.Info("credits added", "amount", input.Body.Amount, "balance", bal, "caller", caller(ctx))
	return h.output(bal), nil
}

func (h *CreditHandler) output(balance int) *CreditsOutput {
	out := &CreditsOutput{}
	out.Body.Balance = balance
	out.Body.GateEnabled = h.gateEnabled
	return out
}
