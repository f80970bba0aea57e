package httpapi

import (
	"strings"
	"time"

	"github.com/example/fleet-rides/internal/ride"
)

// startTime decodes either an RFC 3339 string or epoch milliseconds.
type startTime struct{ time.Time }

func (t *startTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	v, err := ride.ParseStartTime(s)
	if err != nil {
		return err
	}
	t.Time = v
	return nil
}

type lockRequest struct {
	ParkingImageURL string `json:"parkingImageUrl"`
}

type rateRequest struct {
	VehicleID string    `json:"vehicleId"`
	StartTime startTime `json:"startTime"`
	Tags      []string  `json:"tags"`
	Rating    any       `json:"rating"`
}

type ridePaymentRequest struct {
	VehicleID string    `json:"vehicleId"`
	StartTime startTime `json:"startTime"`
	Method    string    `json:"method"`
}

type cardRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}
