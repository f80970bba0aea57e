package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleOwnerVehicles(w http.ResponseWriter, r *http.Request) {
	list, err := s.vehicles.Vehicles(r.Context(), callerID(r), r.URL.Query().Get("date"))
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": list})
}

func (s *Server) handleVehicleDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.vehicles.Details(r.Context(), callerID(r), mux.Vars(r)["id"], r.URL.Query().Get("date"))
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleFeedbacks(w http.ResponseWriter, r *http.Request) {
	fb, err := s.vehicles.Feedbacks(r.Context(), callerID(r), mux.Vars(r)["id"], r.URL.Query().Get("date"))
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedbacks": fb})
}

func (s *Server) handleVehicleStatuses(w http.ResponseWriter, r *http.Request) {
	views, err := s.vehicles.Statuses(r.Context(), callerID(r))
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := s.vehicles.ChangeStatus(r.Context(), callerID(r), vars["id"], vars["status"])
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	if res.NoOp() {
		writeOK(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": res.JobID})
}

func (s *Server) handleJobFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := s.vehicles.JobFailed(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"failed": failed})
}
