// File: internal/server/sse.go
package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/robit-man/web-scrape-service/api/schemas"
)

// handleEventStream serves the live telemetry stream as server-sent events:
// one `data:` frame per event in publish order, with a comment-only
// keepalive whenever the heartbeat interval passes without traffic. The
// stream ends when the client disconnects or the session closes; both tear
// the subscription and timer down promptly.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	sub, err := s.bus.Subscribe(sid)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, schemas.E(schemas.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := s.logger.With(zap.String("session_id", sid),
		zap.String("client", clientKey(r)))
	log.Debug("Event stream attached.")
	defer log.Debug("Event stream detached.")

	interval := s.cfg.Events().HeartbeatInterval
	heartbeat := time.NewTimer(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-sub.C:
			if !open {
				// Session closed: terminate the stream, not an error.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Warn("Dropping unencodable event.", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()

			if !heartbeat.Stop() {
				select {
				case <-heartbeat.C:
				default:
				}
			}
			heartbeat.Reset(interval)

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return
			}
			flusher.Flush()
			heartbeat.Reset(interval)
		}
	}
}
