package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/storage"
)

type fakeGateway struct {
	attachErr  error
	detachErr  error
	detached   []string
	attachedTo string
}

func (f *fakeGateway) Attach(_ context.Context, pm, customerID, _ string) (Card, error) {
	if f.attachErr != nil {
		return Card{}, f.attachErr
	}
	if customerID == "" {
		customerID = "cus_new"
	}
	f.attachedTo = customerID
	return Card{ID: pm, CustomerID: customerID, Last4: "4242", Brand: "visa"}, nil
}

func (f *fakeGateway) Card(_ context.Context, pm string) (Card, error) {
	return Card{ID: pm, Last4: "4242", Brand: "visa"}, nil
}

func (f *fakeGateway) Detach(_ context.Context, pm string) error {
	f.detached = append(f.detached, pm)
	return f.detachErr
}

func newTestService() (*Service, *storage.MemoryStore, *fakeGateway) {
	store := storage.NewMemoryStore()
	store.PutRider(models.Rider{ID: "r1", Email: "r1@example.com"})
	gw := &fakeGateway{}
	return NewService(store, gw, nil), store, gw
}

func TestSetCard_StoresPaymentMethod(t *testing.T) {
	svc, store, gw := newTestService()
	ctx := context.Background()

	view, err := svc.SetCard(ctx, "r1", " pm_123 ")
	require.NoError(t, err)
	assert.True(t, view.HasPaymentMethod)
	assert.Equal(t, "4242", view.Last4)
	assert.Equal(t, "cus_new", gw.attachedTo)

	r, err := store.FindRider(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "pm_123", r.PaymentMethodID)
	assert.Equal(t, "cus_new", r.PaymentMethodCustomer)

	// a second card reuses the existing customer
	_, err = svc.SetCard(ctx, "r1", "pm_456")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", gw.attachedTo)
}

func TestSetCard_Errors(t *testing.T) {
	svc, store, gw := newTestService()
	ctx := context.Background()

	_, err := svc.SetCard(ctx, "r1", "")
	assert.ErrorIs(t, err, ErrMissingMethod)

	_, err = svc.SetCard(ctx, "ghost", "pm_1")
	assert.ErrorIs(t, err, ErrRiderNotFound)

	gw.attachErr = ErrInvalidCard
	_, err = svc.SetCard(ctx, "r1", "pm_bad")
	assert.ErrorIs(t, err, ErrInvalidCard)

	r, err := store.FindRider(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, r.HasPaymentMethod())
}

func TestCardInfoAndRemove(t *testing.T) {
	svc, store, gw := newTestService()
	ctx := context.Background()

	view, err := svc.CardInfo(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, view.HasPaymentMethod)
	assert.ErrorIs(t, svc.RemoveCard(ctx, "r1"), ErrNoCard)

	_, err = svc.SetCard(ctx, "r1", "pm_1")
	require.NoError(t, err)
	view, err = svc.CardInfo(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, view.HasPaymentMethod)
	assert.Equal(t, "visa", view.Brand)

	gw.detachErr = errors.New("stripe down")
	require.NoError(t, svc.RemoveCard(ctx, "r1"))
	assert.Equal(t, []string{"pm_1"}, gw.detached)
	r, err := store.FindRider(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, r.HasPaymentMethod())
}

func TestLocalGateway(t *testing.T) {
	c, err := LocalGateway{}.Attach(context.Background(), "pm_1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "pm_1", c.ID)
	assert.Equal(t, "local_pm_1", c.CustomerID)
}
