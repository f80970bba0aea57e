package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/fleet-rides/internal/config"
	"github.com/example/fleet-rides/internal/geo"
	"github.com/example/fleet-rides/internal/jobs"
	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/storage"
	"github.com/example/fleet-rides/internal/vehicle"
)

// fleetStore is the persistence the simulator writes on behalf of vehicles.
type fleetStore interface {
	storage.ActiveRides
	storage.Vehicles
	storage.RideSummaries
}

// actuator plays the part of the physical fleet: it answers unlock, end-ride
// and status messages by writing the state the real devices would report.
type actuator struct {
	channels       config.Channels
	store          fleetStore
	jobs           jobs.Store
	index          geo.Index
	pricePerMinute float64
	currency       string
	attempts       int
	delay          time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

type unlockMessage struct {
	QRCode  string `json:"qrCode"`
	RiderID string `json:"riderId"`
	JobID   string `json:"jobId"`
}

type endRideMessage struct {
	RiderID          string `json:"riderId"`
	ParkingImageURL  string `json:"parkingImageUrl"`
	PaymentMethodDAV bool   `json:"paymentMethodDAV"`
}

type searchMessage struct {
	SearchPrefixLength int    `json:"searchPrefixLength"`
	LocationHash       string `json:"locationHash"`
}

type statusMessage struct {
	VehicleID string `json:"vehicleId"`
	JobID     string `json:"jobId"`
}

var errUnknownChannel = errors.New("unknown channel")

func (a *actuator) topics() []string {
	return append([]string{a.channels.UnlockVehicle, a.channels.EndRide, a.channels.SearchVehicles}, vehicle.Channels()...)
}

func (a *actuator) handle(ctx context.Context, channel string, value []byte) error {
	switch channel {
	case a.channels.UnlockVehicle:
		var m unlockMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("decode unlock: %w", err)
		}
		return a.unlock(ctx, m)
	case a.channels.EndRide:
		var m endRideMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("decode end ride: %w", err)
		}
		return a.endRide(ctx, m)
	case a.channels.SearchVehicles:
		var m searchMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("decode search: %w", err)
		}
		return a.search(ctx, m)
	}
	if target, ok := vehicle.TargetFor(channel); ok {
		var m statusMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("decode status change: %w", err)
		}
		return a.changeStatus(ctx, m, target)
	}
	return fmt.Errorf("%w: %s", errUnknownChannel, channel)
}

// unlock starts a ride when the vehicle is available and fails the job
// otherwise. The ride is written before the job is marked started.
func (a *actuator) unlock(ctx context.Context, m unlockMessage) error {
	v, err := a.store.FindVehicleByQRCode(ctx, m.QRCode)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && v.Status != models.StatusAvailable) {
		a.logger.Info("unlock rejected", "rider_id", m.RiderID, "qr_code", m.QRCode, "status", v.Status)
		return withRetry(ctx, a.attempts, a.delay, func() error {
			return a.jobs.SetState(ctx, m.JobID, models.JobFailed)
		})
	}
	if err != nil {
		return err
	}

	ride := models.ActiveRide{
		RiderID:                m.RiderID,
		VehicleID:              v.ID,
		StartTime:              a.timestamp(),
		StartGeohash:           v.GeoHash,
		StartBatteryPercentage: v.BatteryLevel,
		LastBatteryPercentage:  v.BatteryLevel,
	}
	return withRetry(ctx, a.attempts, a.delay, func() error {
		if err := a.store.PutActiveRide(ctx, ride); err != nil {
			return err
		}
		if err := a.store.SetVehicleStatus(ctx, v.ID, models.StatusOnMission); err != nil {
			return err
		}
		return a.jobs.SetState(ctx, m.JobID, models.JobStarted)
	})
}

func (a *actuator) endRide(ctx context.Context, m endRideMessage) error {
	ride, err := a.store.GetActiveRide(ctx, m.RiderID)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.Info("end ride ignored, no active ride", "rider_id", m.RiderID)
		return nil
	}
	if err != nil {
		return err
	}
	end := a.timestamp()
	// the owner is denormalised onto the summary for feedback listings
	var ownerID string
	if v, err := a.store.FindVehicle(ctx, ride.VehicleID); err == nil {
		ownerID = v.OwnerID
	}
	minutes := math.Ceil(end.Sub(ride.StartTime).Minutes())
	summary := models.RideSummary{
		RiderID:          ride.RiderID,
		VehicleID:        ride.VehicleID,
		OwnerID:          ownerID,
		StartTime:        ride.StartTime,
		EndTime:          &end,
		StartGeohash:     ride.StartGeohash,
		EndGeohash:       ride.StartGeohash,
		ParkingImageURL:  m.ParkingImageURL,
		Price:            minutes * a.pricePerMinute,
		PaymentMethodDav: m.PaymentMethodDAV,
		CurrencyCode:     a.currency,
		EffectiveDate:    end.Format("2006-01-02"),
		Distance:         ride.Distance,
	}
	return withRetry(ctx, a.attempts, a.delay, func() error {
		if err := a.store.SaveRideSummary(ctx, summary); err != nil {
			return err
		}
		if err := a.store.DeleteUserRide(ctx, ride.RiderID); err != nil {
			return err
		}
		return a.store.SetVehicleStatus(ctx, ride.VehicleID, models.StatusAvailable)
	})
}

// search answers a rider search by caching the available vehicles whose
// geohash starts with the requested prefix.
func (a *actuator) search(ctx context.Context, m searchMessage) error {
	if m.LocationHash == "" {
		return errors.New("search without locationHash")
	}
	vs, err := a.store.VehiclesByGeoHashPrefix(ctx, m.LocationHash)
	if err != nil {
		return err
	}
	available := make([]models.Vehicle, 0, len(vs))
	for _, v := range vs {
		if v.Status == models.StatusAvailable {
			available = append(available, v)
		}
	}
	a.logger.Info("search answered", "prefix", m.LocationHash, "vehicles", len(available))
	return withRetry(ctx, a.attempts, a.delay, func() error {
		return a.index.Store(ctx, m.LocationHash, available)
	})
}

// timestamp is millisecond precise so that the start time a client echoes
// back as epoch millis still matches the stored ride.
func (a *actuator) timestamp() time.Time {
	return a.now().UTC().Truncate(time.Millisecond)
}

func (a *actuator) changeStatus(ctx context.Context, m statusMessage, target models.VehicleStatus) error {
	return withRetry(ctx, a.attempts, a.delay, func() error {
		err := a.store.SetVehicleStatus(ctx, m.VehicleID, target)
		if errors.Is(err, storage.ErrNotFound) {
			return a.jobs.SetState(ctx, m.JobID, models.JobFailed)
		}
		if err != nil {
			return err
		}
		return a.jobs.SetState(ctx, m.JobID, models.JobStarted)
	})
}

// withRetry runs fn up to attempts times, doubling delay after each failure.
// A job that already expired is not retried.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || errors.Is(err, jobs.ErrNotFound) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
