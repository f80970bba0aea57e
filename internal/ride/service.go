// Package ride coordinates the rider-facing unlock, lock and feedback flows.
//
// Unlocks and locks are asynchronous: the service writes a pending job,
// hands a message to the fleet actuator and returns. The actuator later
// creates or removes the active ride and marks the job started or failed.
// Clients poll ActiveRide, which joins both stores into one status code.
//
// Two concurrent unlocks for the same rider can both observe "no job, no
// ride" and both dispatch. The actuator tolerates the duplicate; nothing
// here claims the rider atomically.
package ride

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/fleet-rides/internal/config"
	"github.com/example/fleet-rides/internal/dispatch"
	"github.com/example/fleet-rides/internal/jobs"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/observability"
	"github.com/example/fleet-rides/internal/storage"
)

type Options struct {
	Channels          config.Channels
	TimeToRate        time.Duration
	TestUserID        string
	TestVehicleQRCode string
}

func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		Channels:          cfg.Channels,
		TimeToRate:        cfg.TimeToRate,
		TestUserID:        cfg.TestUserID,
		TestVehicleQRCode: cfg.TestVehicleQRCode,
	}
}

type Service struct {
	rides      storage.ActiveRides
	riders     storage.Riders
	summaries  storage.RideSummaries
	jobs       jobs.Store
	dispatcher dispatch.Dispatcher
	opts       Options
	now        func() time.Time
	logger     *slog.Logger
}

type Deps struct {
	Rides      storage.ActiveRides
	Riders     storage.Riders
	Summaries  storage.RideSummaries
	Jobs       jobs.Store
	Dispatcher dispatch.Dispatcher
	Logger     *slog.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if opts.TimeToRate <= 0 {
		opts.TimeToRate = 600 * time.Second
	}
	if opts.Channels == (config.Channels{}) {
		opts.Channels = config.DefaultChannels()
	}
	return &Service{
		rides:      deps.Rides,
		riders:     deps.Riders,
		summaries:  deps.Summaries,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		opts:       opts,
		now:        time.Now,
		logger:     logging.Component(deps.Logger, "ride"),
	}
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

type ridePaymentMessage struct {
	RiderID          string    `json:"riderId"`
	VehicleID        string    `json:"vehicleId"`
	StartTime        time.Time `json:"startTime"`
	PaymentMethodDav bool      `json:"paymentMethodDav"`
}

func (s *Service) isTestRider(riderID string) bool { return riderID == s.opts.TestUserID }

// Unlock requests the vehicle behind qrCode for riderID. The unlock job id
// is the rider id, so at most one unlock per rider is tracked at a time.
func (s *Service) Unlock(ctx context.Context, riderID, qrCode string) error {
	if s.isTestRider(riderID) != (qrCode == s.opts.TestVehicleQRCode) {
		return ErrTestIdentityMismatch
	}

	ride, err := s.activeRide(ctx, riderID)
	if err != nil {
		return err
	}
	job, err := s.job(ctx, riderID)
	if err != nil {
		return err
	}
	if ride != nil || job != nil {
		return ErrRideInProgress
	}

	if !s.isTestRider(riderID) {
		rider, err := s.riders.FindRider(ctx, riderID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load rider %s: %w", riderID, err)
		}
		if !rider.HasPaymentMethod() {
			s.logger.Info("unlock refused, no payment method", "rider_id", riderID)
			return ErrNoPaymentMethod
		}
	}

	if err := s.jobs.Insert(ctx, models.Job{ID: riderID, State: models.JobPending, Type: models.JobUnlock}); err != nil {
		return fmt.Errorf("insert unlock job: %w", err)
	}
	observability.JobsInserted.WithLabelValues(string(models.JobUnlock)).Inc()

	msg := unlockMessage{QRCode: qrCode, RiderID: riderID, JobID: riderID}
	if err := s.dispatcher.Send(ctx, s.opts.Channels.UnlockVehicle, msg); err != nil {
		return fmt.Errorf("dispatch unlock: %w", err)
	}
	s.logger.Info("unlock requested", "rider_id", riderID, "qr_code", qrCode)
	return nil
}

// Lock asks the actuator to end the rider's active ride. Nothing is written
// locally, so a failed dispatch is safe to retry.
func (s *Service) Lock(ctx context.Context, riderID, parkingImageURL string) error {
	ride, err := s.activeRide(ctx, riderID)
	if err != nil {
		return err
	}
	if ride == nil {
		return ErrNoActiveRide
	}
	msg := endRideMessage{RiderID: riderID, ParkingImageURL: parkingImageURL}
	if err := s.dispatcher.Send(ctx, s.opts.Channels.EndRide, msg); err != nil {
		return fmt.Errorf("dispatch end ride: %w", err)
	}
	s.logger.Info("end ride requested", "rider_id", riderID, "vehicle_id", ride.VehicleID)
	return nil
}

// ActiveRideStatus is the reconciled view returned to polling clients.
// Ride is nil unless Status is 200.
type ActiveRideStatus struct {
	StatusCode int                `json:"statusCode"`
	Ride       *models.ActiveRide `json:"ride"`
}

// ActiveRide joins the active-ride store and the job store. Reading a
// consumed terminal unlock job deletes it.
func (s *Service) ActiveRide(ctx context.Context, riderID string) (ActiveRideStatus, error) {
	ride, err := s.activeRide(ctx, riderID)
	if err != nil {
		return ActiveRideStatus{}, err
	}
	job, err := s.job(ctx, riderID)
	if err != nil {
		return ActiveRideStatus{}, err
	}

	rideState := RideAbsent
	if ride != nil {
		rideState = RideActive
	}
	jobState := classifyJob(job)
	out := Reconcile(rideState, jobState)

	if out.DeleteJob {
		if err := s.jobs.Delete(ctx, riderID); err != nil {
			return ActiveRideStatus{}, fmt.Errorf("delete consumed job: %w", err)
		}
		observability.JobsDeleted.WithLabelValues(string(job.Type), string(job.State)).Inc()
		s.logger.Info("job consumed", "rider_id", riderID, "job_state", jobState.String(), "status", out.Status)
	}
	observability.ActiveRideStatus.WithLabelValues(fmt.Sprint(out.Status)).Inc()

	res := ActiveRideStatus{StatusCode: out.Status}
	if out.Status == http.StatusOK {
		res.Ride = ride
	}
	return res, nil
}

// RateRequest is the rider's feedback for one finished ride.
type RateRequest struct {
	RiderID   string
	VehicleID string
	StartTime time.Time
	Tags      []string
	Rating    int
}

type feedbackMessage struct {
	VehicleID    string   `json:"vehicle_id"`
	UserID       string   `json:"user_id"`
	RideID       string   `json:"ride_id"`
	Rating       int      `json:"rating"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	FeedbackTags []string `json:"feedback_tags"`
	Datetime     int64    `json:"datetime"`
}

// Rate stores feedback if the ride ended within the rating window, then
// broadcasts it for analytics. A failed broadcast is only logged.
func (s *Service) Rate(ctx context.Context, req RateRequest) error {
	if req.VehicleID == "" || req.StartTime.IsZero() {
		return ErrMissingFields
	}
	summary, err := s.summaries.GetRideSummary(ctx, req.RiderID, req.VehicleID, req.StartTime)
	if errors.Is(err, storage.ErrNotFound) {
		observability.RatingsTotal.WithLabelValues("not_found").Inc()
		return ErrSummaryNotFound
	}
	if err != nil {
		return fmt.Errorf("load ride summary: %w", err)
	}
	if summary.EndTime == nil || s.now().Sub(*summary.EndTime) > s.opts.TimeToRate {
		observability.RatingsTotal.WithLabelValues("expired").Inc()
		return &RatingWindowError{Window: s.opts.TimeToRate}
	}

	err = s.summaries.SetRating(ctx, models.Rating{
		RiderID:       req.RiderID,
		VehicleID:     req.VehicleID,
		StartTime:     req.StartTime,
		EffectiveDate: summary.EffectiveDate,
		Rating:        req.Rating,
		Tags:          req.Tags,
	})
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	observability.RatingsTotal.WithLabelValues("ok").Inc()

	msg := feedbackMessage{
		VehicleID:    req.VehicleID,
		UserID:       req.RiderID,
		RideID:       rideID(req.VehicleID, req.RiderID, req.StartTime),
		Rating:       req.Rating,
		Price:        summary.Price,
		Currency:     summary.CurrencyCode,
		FeedbackTags: req.Tags,
		Datetime:     s.now().UnixMilli(),
	}
	if err := s.dispatcher.Send(ctx, s.opts.Channels.RayvenFeedback, msg); err != nil {
		s.logger.Warn("feedback broadcast failed", "rider_id", req.RiderID, "error", err)
	}
	return nil
}

// rideID is the opaque ride identifier analytics consumers key feedback on.
func rideID(vehicleID, riderID string, startTime time.Time) string {
	b, _ := json.Marshal(struct {
		VehicleID string    `json:"vehicleId"`
		RiderID   string    `json:"riderId"`
		StartTime time.Time `json:"startTime"`
	}{vehicleID, riderID, startTime})
	return base64.StdEncoding.EncodeToString(b)
}

// SetPaymentMethod tells the billing consumer whether the ride is settled in DAV.
func (s *Service) SetPaymentMethod(ctx context.Context, riderID, vehicleID string, startTime time.Time, method string) error {
	if vehicleID == "" || startTime.IsZero() {
		return ErrMissingFields
	}
	msg := ridePaymentMessage{RiderID: riderID, VehicleID: vehicleID, StartTime: startTime, PaymentMethodDav: method == "dav"}
	if err := s.dispatcher.Send(ctx, s.opts.Channels.UpdateDavBalance, msg); err != nil {
		return fmt.Errorf("dispatch ride payment: %w", err)
	}
	return nil
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"ILS": "₪",
	"GBP": "£",
	"HUF": "F",
	"IDR": "R",
	"PHP": "₱",
	"PLN": "z",
}

type SummaryView struct {
	models.RideSummary
	CurrencyUnicode string `json:"currencyUnicode"`
}

// Summary returns nil without error when the ride has no summary yet.
func (s *Service) Summary(ctx context.Context, riderID, vehicleID string, startTime time.Time) (*SummaryView, error) {
	if vehicleID == "" || startTime.IsZero() {
		return nil, ErrMissingFields
	}
	summary, err := s.summaries.GetRideSummary(ctx, riderID, vehicleID, startTime)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ride summary: %w", err)
	}
	return &SummaryView{RideSummary: summary, CurrencyUnicode: currencySymbols[summary.CurrencyCode]}, nil
}

type AccountView struct {
	models.Rider
	HasPaymentMethod bool             `json:"hasPaymentMethod"`
	UserGotDavReward bool             `json:"userGotDavReward"`
	ActiveRide       ActiveRideStatus `json:"activeRide"`
}

func (s *Service) Account(ctx context.Context, riderID string) (AccountView, error) {
	rider, err := s.riders.FindRider(ctx, riderID)
	if errors.Is(err, storage.ErrNotFound) {
		return AccountView{}, ErrRiderNotFound
	}
	if err != nil {
		return AccountView{}, fmt.Errorf("load rider %s: %w", riderID, err)
	}
	status, err := s.ActiveRide(ctx, riderID)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{
		Rider:            rider,
		HasPaymentMethod: rider.HasPaymentMethod(),
		UserGotDavReward: rider.DavBalance != 0,
		ActiveRide:       status,
	}, nil
}

func (s *Service) activeRide(ctx context.Context, riderID string) (*models.ActiveRide, error) {
	r, err := s.rides.GetActiveRide(ctx, riderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active ride: %w", err)
	}
	return &r, nil
}

func (s *Service) job(ctx context.Context, riderID string) (*models.Job, error) {
	j, err := s.jobs.Get(ctx, riderID)
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return &j, nil
}
