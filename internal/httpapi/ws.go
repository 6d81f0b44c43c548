package httpapi

import (
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/collabdocs/trackd/internal/logger"
)

// handleEventsWS streams save notifications to a websocket client until the
// client goes away.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, "not_found", "event feed disabled")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Debug("httpapi: websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	events, cancel := s.hub.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case n, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, n); err != nil {
				return
			}
		}
	}
}
