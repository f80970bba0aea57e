package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/example/fleet-rides/internal/payments"
	"github.com/example/fleet-rides/internal/ride"
	"github.com/example/fleet-rides/internal/vehicle"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

// decodeBody tolerates an empty body; handlers validate required fields.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "unexpected error occurred")
}

func (s *Server) writeRideError(w http.ResponseWriter, r *http.Request, err error) {
	var windowErr *ride.RatingWindowError
	switch {
	case errors.As(err, &windowErr):
		writeError(w, http.StatusForbidden, windowErr.Error())
	case errors.Is(err, ride.ErrMissingFields),
		errors.Is(err, ride.ErrTestIdentityMismatch),
		errors.Is(err, ride.ErrRideInProgress),
		errors.Is(err, ride.ErrNoPaymentMethod),
		errors.Is(err, ride.ErrNoActiveRide):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrSummaryNotFound), errors.Is(err, ride.ErrRiderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) writeVehicleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, vehicle.ErrNotOwner):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, vehicle.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, vehicle.ErrNotFound), errors.Is(err, vehicle.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vehicle.ErrInvalidStatus),
		errors.Is(err, vehicle.ErrInvalidDate),
		errors.Is(err, vehicle.ErrMissingGeoHash):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vehicle.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payments.ErrMissingMethod), errors.Is(err, payments.ErrInvalidCard):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrRiderNotFound), errors.Is(err, payments.ErrNoCard):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.internalError(w, r, err)
	}
}
