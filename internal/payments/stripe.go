package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/paymentmethod"
)

// StripeGateway attaches card payment methods to Stripe customers.
type StripeGateway struct{}

// NewStripeGateway sets the package-level stripe key used by every call.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

// Attach verifies paymentMethodID is a card and attaches it to customerID,
// creating the customer first when the rider has none yet.
func (s *StripeGateway) Attach(ctx context.Context, paymentMethodID, customerID, email string) (Card, error) {
	getParams := &stripe.PaymentMethodParams{}
	getParams.Context = ctx
	pm, err := paymentmethod.Get(paymentMethodID, getParams)
	if err != nil {
		return Card{}, classify(err)
	}
	if pm.Card == nil {
		return Card{}, fmt.Errorf("%w: payment method %s is not a card", ErrInvalidCard, paymentMethodID)
	}

	if customerID == "" {
		cp := &stripe.CustomerParams{}
		cp.Context = ctx
		if email != "" {
			cp.Email = stripe.String(email)
		}
		c, err := customer.New(cp)
		if err != nil {
			return Card{}, classify(err)
		}
		customerID = c.ID
	}

	if pm.Customer == nil || pm.Customer.ID != customerID {
		ap := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
		ap.Context = ctx
		if pm, err = paymentmethod.Attach(paymentMethodID, ap); err != nil {
			return Card{}, classify(err)
		}
	}
	return cardOf(pm, customerID), nil
}

func (s *StripeGateway) Card(ctx context.Context, paymentMethodID string) (Card, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := paymentmethod.Get(paymentMethodID, params)
	if err != nil {
		return Card{}, classify(err)
	}
	customerID := ""
	if pm.Customer != nil {
		customerID = pm.Customer.ID
	}
	return cardOf(pm, customerID), nil
}

func (s *StripeGateway) Detach(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	_, err := paymentmethod.Detach(paymentMethodID, params)
	return classify(err)
}

func cardOf(pm *stripe.PaymentMethod, customerID string) Card {
	c := Card{ID: pm.ID, CustomerID: customerID}
	if pm.Card != nil {
		c.Last4 = pm.Card.Last4
		c.Brand = string(pm.Card.Brand)
	}
	return c
}

// classify turns card and request errors into ErrInvalidCard so callers
// can answer 400; anything else stays an upstream failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) && (se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest) {
		return fmt.Errorf("%w: %s", ErrInvalidCard, se.Msg)
	}
	return fmt.Errorf("stripe: %w", err)
}
