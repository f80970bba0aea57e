package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/fleet-rides/internal/models"
)

var ErrNotFound = errors.New("record not found")

// ActiveRides is the rider's currently open ride. The API only reads it;
// PutActiveRide and DeleteUserRide belong to the actuator.
type ActiveRides interface {
	GetActiveRide(ctx context.Context, riderID string) (models.ActiveRide, error)
	PutActiveRide(ctx context.Context, ride models.ActiveRide) error
	DeleteUserRide(ctx context.Context, riderID string) error
}

type Vehicles interface {
	FindVehicle(ctx context.Context, id string) (models.Vehicle, error)
	FindVehicleByQRCode(ctx context.Context, qrCode string) (models.Vehicle, error)
	VehiclesByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error)
	VehiclesByGeoHashPrefix(ctx context.Context, prefix string) ([]models.Vehicle, error)
	SetVehicleStatus(ctx context.Context, id string, status models.VehicleStatus) error
}

type Riders interface {
	FindRider(ctx context.Context, id string) (models.Rider, error)
	UpdatePaymentMethod(ctx context.Context, riderID, paymentMethodID, customerID string) error
}

type RideSummaries interface {
	GetRideSummary(ctx context.Context, riderID, vehicleID string, startTime time.Time) (models.RideSummary, error)
	SaveRideSummary(ctx context.Context, s models.RideSummary) error
	// SetRating updates the summary and its effective-date projection together.
	SetRating(ctx context.Context, r models.Rating) error
}

// Reports are the owner dashboard reads over finished rides. Stats come from
// the effective-date projection; day is formatted as 2006-01-02.
type Reports interface {
	OwnerVehicleStats(ctx context.Context, ownerID, day string) ([]models.VehicleStats, error)
	// VehicleFeedbacks returns the newest rated summaries that started before
	// the given time, at most limit of them.
	VehicleFeedbacks(ctx context.Context, vehicleID string, before time.Time, limit int) ([]models.RideSummary, error)
}

// withDuration fills the computed DurationMS field; it is never stored.
func withDuration(r models.ActiveRide, now time.Time) models.ActiveRide {
	r.DurationMS = now.Sub(r.StartTime).Milliseconds()
	return r
}
