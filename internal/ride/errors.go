package ride

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingFields        = errors.New("vehicleId and startTime are required")
	ErrTestIdentityMismatch = errors.New("test vehicle can only be unlocked by the test rider")
	ErrRideInProgress       = errors.New("an unlock is pending or a ride is already active")
	ErrNoPaymentMethod      = errors.New("rider has no payment method")
	ErrNoActiveRide         = errors.New("rider has no active ride")
	ErrSummaryNotFound      = errors.New("ride summary not found")
	ErrRiderNotFound        = errors.New("rider not found")
	ErrRatingWindowExpired  = errors.New("rating window expired")
)

// RatingWindowError carries the configured window so the message can tell
// the rider how long they had.
type RatingWindowError struct {
	Window time.Duration
}

func (e *RatingWindowError) Error() string {
	return fmt.Sprintf("Time for feedback is expired, you had to post your feedback within %g minutes", e.Window.Minutes())
}

func (e *RatingWindowError) Is(target error) bool { return target == ErrRatingWindowExpired }
