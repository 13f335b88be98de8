package topup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// ErrSessionNotFound is returned when the processor has no record of the session id.
var ErrSessionNotFound = errors.New("checkout session not found")

const (
	metadataUserID = "uid"
	metadataAmount = "amount"
)

// Processor represents a connector to an external payment processor.
type Processor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	RetrieveSession(ctx context.Context, sessionID string) (Session, error)
}

// CheckoutRequest carries everything needed to open a hosted checkout page.
type CheckoutRequest struct {
	UserID     string
	Email      string
	Amount     decimal.Decimal
	Currency   string
	SuccessURL string
	CancelURL  string
}

// Checkout identifies a created session and the page the user should be sent to.
type Checkout struct {
	ID  string
	URL string
}

// Session is the processor's view of a checkout. UserID and Amount are the values
// recorded when the session was created.
type Session struct {
	ID       string
	Paid     bool
	UserID   string
	Amount   decimal.Decimal
	Currency string
}

// checkoutSessions is the part of the Stripe client used here.
type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProcessor creates and reads Stripe Checkout Sessions.
type StripeProcessor struct {
	sessions checkoutSessions
}

// NewStripeProcessor builds a processor authenticated with the secret key.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	sc := client.New(secretKey, nil)
	return &StripeProcessor{sessions: sc.CheckoutSessions}
}

// CreateCheckout opens a one-off payment session for the top-up amount.
func (p *StripeProcessor) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Locale:             stripe.String("en"),
		ClientReferenceID:  stripe.String(req.UserID),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Wallet Top-up"),
					},
					UnitAmount: stripe.Int64(minorUnits(req.Amount, req.Currency)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(metadataUserID, req.UserID)
	params.AddMetadata(metadataAmount, req.Amount.StringFixed(2))

	s, err := p.sessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return Checkout{ID: s.ID, URL: s.URL}, nil
}

// RetrieveSession re-reads the session so payment state never comes from the client.
func (p *StripeProcessor) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}
	return sessionFromStripe(s)
}

func sessionFromStripe(s *stripe.CheckoutSession) (Session, error) {
	out := Session{
		ID:       s.ID,
		Paid:     s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		UserID:   s.Metadata[metadataUserID],
		Currency: string(s.Currency),
	}
	if out.UserID == "" {
		out.UserID = s.ClientReferenceID
	}
	if s.AmountTotal > 0 {
		out.Amount = decimal.New(s.AmountTotal, -CurrencyExponent(out.Currency))
		return out, nil
	}
	amount, err := decimal.NewFromString(s.Metadata[metadataAmount])
	if err != nil {
		return Session{}, fmt.Errorf("stripe: session %s has no usable amount: %w", s.ID, err)
	}
	out.Amount = amount
	return out, nil
}

// zeroDecimalCurrencies and threeDecimalCurrencies follow Stripe's list of
// currencies whose smallest unit is not the hundredth.
var (
	zeroDecimalCurrencies = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimalCurrencies = map[string]bool{
		"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
	}
)

// CurrencyExponent returns the number of decimal places in the currency's minor unit.
func CurrencyExponent(currency string) int32 {
	currency = strings.ToLower(currency)
	switch {
	case zeroDecimalCurrencies[currency]:
		return 0
	case threeDecimalCurrencies[currency]:
		return 3
	default:
		return 2
	}
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyExponent(currency)).Round(0).IntPart()
}

// StaticProcessor simulates a processor whose sessions are paid as soon as they are created.
type StaticProcessor struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewStaticProcessor builds an in-process processor for development and tests.
func NewStaticProcessor() *StaticProcessor {
	return &StaticProcessor{sessions: make(map[string]Session)}
}

// CreateCheckout records a paid session with a synthetic id.
func (p *StaticProcessor) CreateCheckout(_ context.Context, req CheckoutRequest) (Checkout, error) {
	id := "cs_static_" + uuid.NewString()
	p.mu.Lock()
	p.sessions[id] = Session{ID: id, Paid: true, UserID: req.UserID, Amount: req.Amount, Currency: req.Currency}
	p.mu.Unlock()
	return Checkout{ID: id, URL: req.SuccessURL}, nil
}

// RetrieveSession returns the recorded session.
func (p *StaticProcessor) RetrieveSession(_ context.Context, sessionID string) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// Put stores a session as-is, letting tests stage unpaid or foreign sessions.
func (p *StaticProcessor) Put(s Session) {
	p.mu.Lock()
	p.sessions[s.ID] = s
	p.mu.Unlock()
}
