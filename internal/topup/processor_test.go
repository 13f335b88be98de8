package topup

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.test/cs_test_123"}, nil
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestStripeProcessorCreateCheckout(t *testing.T) {
	fake := &fakeSessions{}
	p := &StripeProcessor{sessions: fake}

	checkout, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		Email:      "u1@example.com",
		Amount:     decimal.RequireFromString("250.50"),
		Currency:   "inr",
		SuccessURL: "https://app.test/success",
		CancelURL:  "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", checkout.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_123", checkout.URL)

	params := fake.created
	require.NotNil(t, params)
	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, "en", *params.Locale)
	assert.Equal(t, "u1@example.com", *params.CustomerEmail)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, int64(25050), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "inr", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, "u1", params.Metadata[metadataUserID])
	assert.Equal(t, "250.50", params.Metadata[metadataAmount])
}

func TestStripeProcessorRetrieveSession(t *testing.T) {
	fake := &fakeSessions{session: &stripe.CheckoutSession{
		ID:            "cs_test_123",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   20000,
		Currency:      "inr",
		Metadata:      map[string]string{metadataUserID: "u1", metadataAmount: "200.00"},
	}}
	p := &StripeProcessor{sessions: fake}

	session, err := p.RetrieveSession(context.Background(), "cs_test_123")
	require.NoError(t, err)
	assert.True(t, session.Paid)
	assert.Equal(t, "u1", session.UserID)
	assert.True(t, session.Amount.Equal(decimal.NewFromInt(200)), "amount %s", session.Amount)
}

func TestSessionFromStripeFallsBackToMetadataAmount(t *testing.T) {
	session, err := sessionFromStripe(&stripe.CheckoutSession{
		ID:                "cs_1",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusUnpaid,
		ClientReferenceID: "u9",
		Metadata:          map[string]string{metadataAmount: "75.25"},
	})
	require.NoError(t, err)
	assert.False(t, session.Paid)
	assert.Equal(t, "u9", session.UserID)
	assert.True(t, session.Amount.Equal(decimal.RequireFromString("75.25")))

	_, err = sessionFromStripe(&stripe.CheckoutSession{ID: "cs_2"})
	assert.Error(t, err)
}

func TestStripeProcessorNotFound(t *testing.T) {
	p := &StripeProcessor{sessions: &fakeSessions{err: &stripe.Error{HTTPStatusCode: 404}}}
	_, err := p.RetrieveSession(context.Background(), "cs_nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMinorUnitsFollowCurrencyExponent(t *testing.T) {
	cases := []struct {
		currency string
		amount   string
		minor    int64
	}{
		{"inr", "250.50", 25050},
		{"USD", "1", 100},
		{"jpy", "500", 500},
		{"krw", "12000", 12000},
		{"kwd", "1.5", 1500},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		assert.Equal(t, tc.minor, minorUnits(amount, tc.currency), "%s %s", tc.amount, tc.currency)

		session, err := sessionFromStripe(&stripe.CheckoutSession{
			ID:          "cs_" + tc.currency,
			AmountTotal: tc.minor,
			Currency:    stripe.Currency(strings.ToLower(tc.currency)),
		})
		require.NoError(t, err)
		assert.True(t, session.Amount.Equal(amount), "%s: got %s", tc.currency, session.Amount)
	}
}
