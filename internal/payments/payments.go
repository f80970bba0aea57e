// Package payments manages the card a rider must have on file before an
// unlock is accepted.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/storage"
)

var (
	ErrInvalidCard   = errors.New("invalid payment method")
	ErrNoCard        = errors.New("no card associated to this user")
	ErrRiderNotFound = errors.New("rider not found")
	ErrMissingMethod = errors.New("paymentMethodId is required")
)

type Card struct {
	ID         string `json:"-"`
	CustomerID string `json:"-"`
	Last4      string `json:"last4,omitempty"`
	Brand      string `json:"brand,omitempty"`
}

// Gateway is the card processor. StripeGateway is the production one.
type Gateway interface {
	Attach(ctx context.Context, paymentMethodID, customerID, email string) (Card, error)
	Card(ctx context.Context, paymentMethodID string) (Card, error)
	Detach(ctx context.Context, paymentMethodID string) error
}

// LocalGateway accepts any payment method id without contacting a processor.
// It is used when no STRIPE_API_KEY is configured.
type LocalGateway struct{}

func (LocalGateway) Attach(_ context.Context, paymentMethodID, customerID, _ string) (Card, error) {
	if customerID == "" {
		customerID = "local_" + paymentMethodID
	}
	return Card{ID: paymentMethodID, CustomerID: customerID}, nil
}

func (LocalGateway) Card(_ context.Context, paymentMethodID string) (Card, error) {
	return Card{ID: paymentMethodID}, nil
}

func (LocalGateway) Detach(context.Context, string) error { return nil }

type Service struct {
	riders  storage.Riders
	gateway Gateway
	logger  *slog.Logger
}

func NewService(riders storage.Riders, gateway Gateway, logger *slog.Logger) *Service {
	return &Service{riders: riders, gateway: gateway, logger: logging.Component(logger, "payments")}
}

type CardView struct {
	HasPaymentMethod bool `json:"hasPaymentMethod"`
	Card
}

// SetCard attaches paymentMethodID to the rider's customer and records it as
// the rider's payment method.
func (s *Service) SetCard(ctx context.Context, riderID, paymentMethodID string) (CardView, error) {
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return CardView{}, ErrMissingMethod
	}
	rider, err := s.rider(ctx, riderID)
	if err != nil {
		return CardView{}, err
	}
	card, err := s.gateway.Attach(ctx, paymentMethodID, rider.PaymentMethodCustomer, rider.Email)
	if err != nil {
		return CardView{}, err
	}
	if err := s.riders.UpdatePaymentMethod(ctx, riderID, card.ID, card.CustomerID); err != nil {
		return CardView{}, fmt.Errorf("store payment method: %w", err)
	}
	s.logger.Info("card attached", "rider_id", riderID, "brand", card.Brand)
	return CardView{HasPaymentMethod: true, Card: card}, nil
}

// CardInfo reports the card on file, or HasPaymentMethod false when none.
func (s *Service) CardInfo(ctx context.Context, riderID string) (CardView, error) {
	rider, err := s.rider(ctx, riderID)
	if err != nil {
		return CardView{}, err
	}
	if !rider.HasPaymentMethod() {
		return CardView{}, nil
	}
	card, err := s.gateway.Card(ctx, rider.PaymentMethodID)
	if err != nil {
		return CardView{}, err
	}
	return CardView{HasPaymentMethod: true, Card: card}, nil
}

// RemoveCard detaches the rider's card and clears it locally. The local
// record is cleared even if the processor call fails.
func (s *Service) RemoveCard(ctx context.Context, riderID string) error {
	rider, err := s.rider(ctx, riderID)
	if err != nil {
		return err
	}
	if !rider.HasPaymentMethod() {
		return ErrNoCard
	}
	if err := s.gateway.Detach(ctx, rider.PaymentMethodID); err != nil {
		s.logger.Warn("card detach failed", "rider_id", riderID, "error", err)
	}
	if err := s.riders.UpdatePaymentMethod(ctx, riderID, "", rider.PaymentMethodCustomer); err != nil {
		return fmt.Errorf("clear payment method: %w", err)
	}
	return nil
}

func (s *Service) rider(ctx context.Context, riderID string) (*models.Rider, error) {
	r, err := s.riders.FindRider(ctx, riderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRiderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rider %s: %w", riderID, err)
	}
	return &r, nil
}
