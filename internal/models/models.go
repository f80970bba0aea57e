package models

import (
	"strings"
	"time"
)

type JobState string

const (
	JobPending JobState = "pending"
	JobStarted JobState = "started"
	JobFailed  JobState = "failed"
)

type JobType string

const (
	JobUnlock              JobType = "unlock"
	JobVehicleStatusChange JobType = "vehicle status change"
)

// Job marks an in-flight actuator operation. For unlocks the id is the rider id.
type Job struct {
	ID    string   `json:"id"`
	State JobState `json:"state"`
	Type  JobType  `json:"type"`
}

type VehicleStatus string

const (
	StatusAvailable    VehicleStatus = "available"
	StatusNotAvailable VehicleStatus = "notavailable"
	StatusMaintenance  VehicleStatus = "maintenance"
	StatusOnMission    VehicleStatus = "onmission"
)

// ParseVehicleStatus accepts any of the four known statuses, case-insensitively.
func ParseVehicleStatus(s string) (VehicleStatus, bool) {
	switch VehicleStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusAvailable:
		return StatusAvailable, true
	case StatusNotAvailable:
		return StatusNotAvailable, true
	case StatusMaintenance:
		return StatusMaintenance, true
	case StatusOnMission:
		return StatusOnMission, true
	}
	return "", false
}

type Vehicle struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"ownerId"`
	Status       VehicleStatus `json:"status"`
	InTransition bool          `json:"inTransition"`
	BatteryLevel int           `json:"batteryLevel"`
	Model        string        `json:"model,omitempty"`
	QRCode       string        `json:"qrCode"`
	GeoHash      string        `json:"geoHash"`
	Name         string        `json:"name,omitempty"`
	Vendor       string        `json:"vendor"`
	DeviceID     string        `json:"deviceId"`
}

// ActiveRide is written and removed by the actuator only.
type ActiveRide struct {
	RiderID                string     `json:"riderId"`
	VehicleID              string     `json:"vehicleId"`
	StartTime              time.Time  `json:"startTime"`
	EndTime                *time.Time `json:"endTime,omitempty"`
	StartGeohash           string     `json:"startGeohash,omitempty"`
	EndGeohash             string     `json:"endGeohash,omitempty"`
	StartBatteryPercentage int        `json:"startBatteryPercentage"`
	LastBatteryPercentage  int        `json:"lastBatteryPercentage"`
	Distance               float64    `json:"distance"`
	DurationMS             int64      `json:"durationMS"`
}

type Rider struct {
	ID                    string  `json:"id"`
	Email                 string  `json:"email,omitempty"`
	PhoneNumber           string  `json:"phoneNumber,omitempty"`
	FirstName             string  `json:"firstName,omitempty"`
	LastName              string  `json:"lastName,omitempty"`
	DavBalance            float64 `json:"davBalance"`
	PaymentMethodID       string  `json:"-"`
	PaymentMethodCustomer string  `json:"-"`
}

func (r *Rider) HasPaymentMethod() bool { return r != nil && r.PaymentMethodID != "" }

// RideSummary is the immutable record of a finished ride. Only rating and
// tags are ever written after creation.
type RideSummary struct {
	RiderID          string     `json:"riderId"`
	VehicleID        string     `json:"vehicleId"`
	OwnerID          string     `json:"ownerId,omitempty"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	StartGeohash     string     `json:"startGeohash,omitempty"`
	EndGeohash       string     `json:"endGeohash,omitempty"`
	ParkingImageURL  string     `json:"parkingImageUrl,omitempty"`
	Rating           int        `json:"rating,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Price            float64    `json:"price"`
	PaymentMethodDav bool       `json:"paymentMethodDav"`
	CurrencyCode     string     `json:"currencyCode,omitempty"`
	EffectiveDate    string     `json:"effectiveDate,omitempty"`
	Distance         float64    `json:"distance"`
	DavAwarded       float64    `json:"davAwarded"`
	DavRate          float64    `json:"davRate,omitempty"`
}

// Rating is the feedback a rider leaves on a finished ride.
type Rating struct {
	RiderID       string
	VehicleID     string
	StartTime     time.Time
	EffectiveDate string
	Rating        int
	Tags          []string
}

// VehicleStats aggregates one vehicle's rides for an owner's dashboard day.
// Daily fields cover the effective date only, totals everything up to it.
type VehicleStats struct {
	VehicleID           string  `json:"-"`
	DailyUse            int     `json:"dailyUse"`
	DailyProfit         float64 `json:"dailyProfit"`
	TotalUse            int     `json:"totalUse"`
	TotalProfit         float64 `json:"totalProfit"`
	FeedbackRatingCount [5]int  `json:"feedbackRatingCount"`
	LastParkingImageURL string  `json:"lastParkingImageUrl,omitempty"`
}
