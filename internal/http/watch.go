package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// handleWatchActiveRide upgrades to a websocket and pushes the reconciled
// active-ride status every watch interval. It stops after the first status
// other than 404, or when the client goes away.
func (s *Server) handleWatchActiveRide(w http.ResponseWriter, r *http.Request) {
	riderID := callerID(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "rider_id", riderID, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()
	for {
		status, err := s.rides.ActiveRide(ctx, riderID)
		if err != nil {
			s.logger.Error("watch active ride failed", "rider_id", riderID, "error", err)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "unexpected error occurred"))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(status); err != nil {
			return
		}
		if status.StatusCode != http.StatusNotFound {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
