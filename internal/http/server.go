package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/fleet-rides/internal/auth"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/payments"
	"github.com/example/fleet-rides/internal/ride"
	"github.com/example/fleet-rides/internal/vehicle"
)

// Deps are the services behind the API. Ready is optional and backs /health.
type Deps struct {
	Rides         *ride.Service
	Vehicles      *vehicle.Service
	Catalog       *vehicle.Catalog
	Cards         *payments.Service
	Verifier      *auth.Verifier
	Ready         func(ctx context.Context) error
	WatchInterval time.Duration
	Logger        *slog.Logger
}

type Server struct {
	rides         *ride.Service
	vehicles      *vehicle.Service
	catalog       *vehicle.Catalog
	cards         *payments.Service
	verifier      *auth.Verifier
	ready         func(ctx context.Context) error
	watchInterval time.Duration
	upgrader      websocket.Upgrader
	logger        *slog.Logger
	mux           *mux.Router
}

func NewServer(d Deps) *Server {
	if d.WatchInterval <= 0 {
		d.WatchInterval = time.Second
	}
	s := &Server{
		rides:         d.Rides,
		vehicles:      d.Vehicles,
		catalog:       d.Catalog,
		cards:         d.Cards,
		verifier:      d.Verifier,
		ready:         d.Ready,
		watchInterval: d.WatchInterval,
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:        logging.Component(d.Logger, "http"),
		mux:           mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api/auth").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/vehicle/{code}/unlock", s.handleUnlock).Methods(http.MethodGet)
	api.HandleFunc("/vehicle/lock", s.handleLock).Methods(http.MethodPost)
	api.HandleFunc("/vehicle/{code:.+}", s.handleVehicleByCode).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/search/{geoHash}", s.handleSearchVehicles).Methods(http.MethodGet)
	api.HandleFunc("/active-ride", s.handleActiveRide).Methods(http.MethodGet)
	api.HandleFunc("/active-ride/watch", s.handleWatchActiveRide).Methods(http.MethodGet)
	api.HandleFunc("/rate", s.handleRate).Methods(http.MethodPut)
	api.HandleFunc("/ride-payment", s.handleRidePayment).Methods(http.MethodPut)
	api.HandleFunc("/ride-summary", s.handleRideSummary).Methods(http.MethodGet)
	api.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet)
	api.HandleFunc("/credit-card", s.handleGetCard).Methods(http.MethodGet)
	api.HandleFunc("/credit-card", s.handlePutCard).Methods(http.MethodPut)
	api.HandleFunc("/credit-card", s.handleDeleteCard).Methods(http.MethodDelete)

	api.HandleFunc("/vehicles", s.handleOwnerVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/statuses", s.handleVehicleStatuses).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", s.handleVehicleDetails).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/feedbacks", s.handleFeedbacks).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/{status}", s.handleChangeStatus).Methods(http.MethodPut)
	api.HandleFunc("/jobs/{id}", s.handleJobFailed).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func newID() string { return uuid.NewString() }
