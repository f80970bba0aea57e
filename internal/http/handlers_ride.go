package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/fleet-rides/internal/ride"
)

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := s.rides.Unlock(r.Context(), callerID(r), code); err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.rides.Lock(r.Context(), callerID(r), req.ParkingImageURL); err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeOK(w)
}

var activeRideMessages = map[int]string{
	http.StatusNotFound:         "no active ride",
	http.StatusFailedDependency: "unlock failed",
	http.StatusBadRequest:       "unexpected job state",
}

func (s *Server) handleActiveRide(w http.ResponseWriter, r *http.Request) {
	status, err := s.rides.ActiveRide(r.Context(), callerID(r))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if status.StatusCode == http.StatusOK {
		writeJSON(w, http.StatusOK, status.Ride)
		return
	}
	writeError(w, status.StatusCode, activeRideMessages[status.StatusCode])
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := s.rides.Rate(r.Context(), ride.RateRequest{
		RiderID:   callerID(r),
		VehicleID: req.VehicleID,
		StartTime: req.StartTime.Time,
		Tags:      req.Tags,
		Rating:    ride.NormalizeRating(req.Rating),
	})
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleRidePayment(w http.ResponseWriter, r *http.Request) {
	var req ridePaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.rides.SetPaymentMethod(r.Context(), callerID(r), req.VehicleID, req.StartTime.Time, req.Method); err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleRideSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := ride.ParseStartTime(q.Get("startTime"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.rides.Summary(r.Context(), callerID(r), q.Get("vehicleId"), start)
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.rides.Account(r.Context(), callerID(r))
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	view, err := s.cards.CardInfo(r.Context(), callerID(r))
	if err != nil {
		s.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePutCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	view, err := s.cards.SetCard(r.Context(), callerID(r), req.PaymentMethodID)
	if err != nil {
		s.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.cards.RemoveCard(r.Context(), callerID(r)); err != nil {
		s.writePaymentError(w, r, err)
		return
	}
	writeOK(w)
}
