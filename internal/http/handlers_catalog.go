package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleVehicleByCode reports unrentable vehicles with 200 and a reason so
// the app can explain why the scan did not lead to an unlock.
func (s *Server) handleVehicleByCode(w http.ResponseWriter, r *http.Request) {
	a, err := s.catalog.ByQRCode(r.Context(), callerID(r), mux.Vars(r)["code"])
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	if !a.Available() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": a.Reason})
		return
	}
	writeJSON(w, http.StatusOK, a.Vehicle)
}

func (s *Server) handleSearchVehicles(w http.ResponseWriter, r *http.Request) {
	accuracy := 0
	if v := r.URL.Query().Get("accuracyLevel"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid accuracyLevel")
			return
		}
		accuracy = n
	}
	res, err := s.catalog.Search(r.Context(), callerID(r), mux.Vars(r)["geoHash"], accuracy)
	if err != nil {
		s.writeVehicleError(w, r, err)
		return
	}
	if res.Pending {
		writeJSON(w, http.StatusAccepted, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": res.Vehicles})
}
