package wallet

import (
	"time"

	"github.com/parkease/parkease/internal/ledger"
)

// CheckInRequest is the body of POST /api/check-in.
type CheckInRequest struct {
	Vehicle string `json:"vehicle" validate:"required,max=32"`
}

// CheckInResponse reports the check-in outcome.
type CheckInResponse struct {
	Success    bool    `json:"success"`
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message"`
	NewBalance float64 `json:"new_balance"`
}

// SummaryResponse describes the caller's wallet.
type SummaryResponse struct {
	UserID         string     `json:"user_id"`
	Email          string     `json:"email,omitempty"`
	Name           string     `json:"name,omitempty"`
	Balance        float64    `json:"wallet_balance"`
	LastCheckIn    *time.Time `json:"last_check_in"`
	CurrentVehicle string     `json:"current_vehicle"`
	DailyCharge    float64    `json:"daily_charge"`
}

// TransactionResponse is one entry of the history listing.
type TransactionResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"uid"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Vehicle     string    `json:"vehicle,omitempty"`
	Description string    `json:"description,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func toTransactionResponse(rec ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Amount:      rec.Amount.InexactFloat64(),
		Type:        string(rec.Kind),
		Vehicle:     rec.Vehicle,
		Description: rec.Description,
		Reference:   rec.Reference,
		Timestamp:   rec.CreatedAt,
	}
}
