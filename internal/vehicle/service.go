// Package vehicle turns owner status requests into actuator jobs.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-rides/internal/dispatch"
	"github.com/example/fleet-rides/internal/jobs"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/observability"
	"github.com/example/fleet-rides/internal/storage"
)

var (
	ErrNotFound          = errors.New("vehicle not found")
	ErrNotOwner          = errors.New("vehicle belongs to another owner")
	ErrInvalidStatus     = errors.New("unknown vehicle status")
	ErrIllegalTransition = errors.New("status transition not supported")
	ErrJobNotFound       = errors.New("job not found")
	ErrForbidden         = errors.New("vehicle details are visible to its owner only")
	ErrInvalidDate       = errors.New("date is invalid")
)

type Service struct {
	vehicles   storage.Vehicles
	reports    storage.Reports
	jobs       jobs.Store
	dispatcher dispatch.Dispatcher
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger
}

func NewService(vehicles storage.Vehicles, reports storage.Reports, jobStore jobs.Store, dispatcher dispatch.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		vehicles:   vehicles,
		reports:    reports,
		jobs:       jobStore,
		dispatcher: dispatcher,
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     logging.Component(logger, "vehicle"),
	}
}

// ChangeResult carries the job to poll; JobID is empty when the vehicle was
// already in the desired status.
type ChangeResult struct {
	JobID string
}

func (r ChangeResult) NoOp() bool { return r.JobID == "" }

type statusChangeMessage struct {
	VehicleID string `json:"vehicleId"`
	Vendor    string `json:"vendor"`
	DeviceID  string `json:"deviceId"`
	JobID     string `json:"jobId"`
}

// ChangeStatus asks the actuator to move vehicleID into desired.
//
// A job inserted before a failed dispatch is left to expire on its own.
func (s *Service) ChangeStatus(ctx context.Context, ownerID, vehicleID, desired string) (ChangeResult, error) {
	v, err := s.ownedVehicle(ctx, ownerID, vehicleID)
	if err != nil {
		return ChangeResult{}, err
	}
	want, ok := models.ParseVehicleStatus(desired)
	if !ok {
		return ChangeResult{}, ErrInvalidStatus
	}
	if v.Status == want {
		return ChangeResult{}, nil
	}
	channel, ok := ChannelFor(v.Status, want)
	if !ok {
		return ChangeResult{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.Status, want)
	}

	jobID := s.newID()
	if err := s.jobs.Insert(ctx, models.Job{ID: jobID, State: models.JobPending, Type: models.JobVehicleStatusChange}); err != nil {
		return ChangeResult{}, fmt.Errorf("insert status job: %w", err)
	}
	observability.JobsInserted.WithLabelValues(string(models.JobVehicleStatusChange)).Inc()

	msg := statusChangeMessage{VehicleID: v.ID, Vendor: v.Vendor, DeviceID: v.DeviceID, JobID: jobID}
	if err := s.dispatcher.Send(ctx, channel, msg); err != nil {
		return ChangeResult{}, fmt.Errorf("dispatch %s: %w", channel, err)
	}
	s.logger.Info("vehicle status change requested",
		"vehicle_id", v.ID, "from", v.Status, "to", want, "channel", channel, "job_id", jobID)
	return ChangeResult{JobID: jobID}, nil
}

// StatusView is the compact vehicle shape the owner dashboard polls.
type StatusView struct {
	ID           string               `json:"id"`
	Status       models.VehicleStatus `json:"status"`
	InTransition bool                 `json:"inTransition"`
	GeoHash      string               `json:"geoHash"`
	BatteryLevel int                  `json:"batteryLevel"`
}

func (s *Service) Statuses(ctx context.Context, ownerID string) ([]StatusView, error) {
	vs, err := s.vehicles.VehiclesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner vehicles: %w", err)
	}
	out := make([]StatusView, 0, len(vs))
	for _, v := range vs {
		out = append(out, StatusView{ID: v.ID, Status: v.Status, InTransition: v.InTransition, GeoHash: v.GeoHash, BatteryLevel: v.BatteryLevel})
	}
	return out, nil
}

// JobFailed reports whether the actuator marked the job failed.
func (s *Service) JobFailed(ctx context.Context, jobID string) (bool, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job.State == models.JobFailed, nil
}

// OwnerVehicle is a vehicle merged with its stats for the requested day.
type OwnerVehicle struct {
	models.Vehicle
	models.VehicleStats
}

// parseDay accepts a calendar date or an RFC 3339 timestamp and returns the
// instant plus the UTC day it falls on.
func parseDay(v string) (time.Time, string, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, v, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, "", ErrInvalidDate
	}
	return t, t.UTC().Format(time.DateOnly), nil
}

func (s *Service) Vehicles(ctx context.Context, ownerID, date string) ([]OwnerVehicle, error) {
	_, day, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	vs, err := s.vehicles.VehiclesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner vehicles: %w", err)
	}
	stats, err := s.reports.OwnerVehicleStats(ctx, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("owner stats %s: %w", day, err)
	}
	byID := make(map[string]models.VehicleStats, len(stats))
	for _, st := range stats {
		byID[st.VehicleID] = st
	}
	out := make([]OwnerVehicle, 0, len(vs))
	for _, v := range vs {
		out = append(out, OwnerVehicle{Vehicle: v, VehicleStats: byID[v.ID]})
	}
	return out, nil
}

type LastRider struct {
	ID *string `json:"id"`
}

type Details struct {
	OwnerVehicle
	LastRider LastRider `json:"lastRider"`
}

// Details answers ErrForbidden rather than ErrNotOwner: the dashboard treats
// a foreign vehicle here as a permissions problem, not a bad session.
func (s *Service) Details(ctx context.Context, ownerID, vehicleID, date string) (Details, error) {
	v, err := s.ownedVehicle(ctx, ownerID, vehicleID)
	if errors.Is(err, ErrNotOwner) {
		return Details{}, ErrForbidden
	}
	if err != nil {
		return Details{}, err
	}
	_, day, err := parseDay(date)
	if err != nil {
		return Details{}, err
	}
	stats, err := s.reports.OwnerVehicleStats(ctx, ownerID, day)
	if err != nil {
		return Details{}, fmt.Errorf("owner stats %s: %w", day, err)
	}
	d := Details{OwnerVehicle: OwnerVehicle{Vehicle: v}}
	for _, st := range stats {
		if st.VehicleID == v.ID {
			d.VehicleStats = st
		}
	}
	return d, nil
}

type Feedback struct {
	VehicleID       string     `json:"vehicleId"`
	OwnerID         string     `json:"ownerId"`
	FeedbackTags    []string   `json:"feedbackTags"`
	Rating          int        `json:"rating"`
	ParkingImageURL string     `json:"parkingImageUrl,omitempty"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
}

const feedbackPageSize = 5

// Feedbacks lists the latest rated rides that started before date, or
// before now when date is empty.
func (s *Service) Feedbacks(ctx context.Context, ownerID, vehicleID, date string) ([]Feedback, error) {
	v, err := s.ownedVehicle(ctx, ownerID, vehicleID)
	if err != nil {
		return nil, err
	}
	before := s.now()
	if date != "" {
		if before, _, err = parseDay(date); err != nil {
			return nil, err
		}
	}
	summaries, err := s.reports.VehicleFeedbacks(ctx, v.ID, before, feedbackPageSize)
	if err != nil {
		return nil, fmt.Errorf("vehicle feedbacks %s: %w", v.ID, err)
	}
	out := make([]Feedback, 0, len(summaries))
	for _, rs := range summaries {
		owner := rs.OwnerID
		if owner == "" {
			owner = v.OwnerID
		}
		tags := rs.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, Feedback{
			VehicleID:       rs.VehicleID,
			OwnerID:         owner,
			FeedbackTags:    tags,
			Rating:          rs.Rating,
			ParkingImageURL: rs.ParkingImageURL,
			StartTime:       rs.StartTime,
			EndTime:         rs.EndTime,
		})
	}
	return out, nil
}

func (s *Service) ownedVehicle(ctx context.Context, ownerID, vehicleID string) (models.Vehicle, error) {
	v, err := s.vehicles.FindVehicle(ctx, vehicleID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Vehicle{}, ErrNotFound
	}
	if err != nil {
		return models.Vehicle{}, fmt.Errorf("load vehicle %s: %w", vehicleID, err)
	}
	if v.OwnerID != ownerID {
		return models.Vehicle{}, ErrNotOwner
	}
	return v, nil
}
