package topup

// CreateCheckoutRequest is the body of POST /api/create-checkout-session.
type CreateCheckoutRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// ConfirmRequest is the body of POST /api/payment/confirm-session.
type ConfirmRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// CheckoutResponse tells the client where to send the user.
type CheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ConfirmResponse reports the wallet balance after confirmation.
type ConfirmResponse struct {
	Success          bool    `json:"success"`
	NewBalance       float64 `json:"new_balance"`
	AlreadyProcessed bool    `json:"already_processed,omitempty"`
	TransactionID    string  `json:"transaction_id,omitempty"`
}
