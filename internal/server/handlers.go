// File: internal/server/handlers.go
package server

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/session"
)

// decodeBody unmarshals the request body into dst. An empty body is allowed
// when allowEmpty is set (the action falls back to its defaults).
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return schemas.Wrap(schemas.CodeValidation, "could not read request body", err)
	}
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		return schemas.E(schemas.CodeValidation, "request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return schemas.Wrap(schemas.CodeValidation, "malformed JSON body", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.manager.Snapshot()
	sessions := 0
	if snap.State == session.StateActive {
		sessions = 1
	}
	s.respond(w, http.StatusOK, schemas.HealthResponse{
		OK:          true,
		Status:      "ok",
		BrowserOpen: snap.State == session.StateActive,
		Sessions:    sessions,
		InFlight:    s.gate.InFlight(),
		Capacity:    s.gate.Capacity(),
	})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req schemas.StartSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.respondError(w, err)
		return
	}
	headless := s.cfg.Browser().Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	res, err := s.manager.Start(r.Context(), headless)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, schemas.StartSessionResponse{
		OK:        true,
		SessionID: res.SessionID,
		Headless:  res.Headless,
		Message:   "browser started",
	})
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	res, err := s.manager.Close(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	msg := "no session was open"
	if res.Closed {
		msg = "browser closed"
	}
	s.respond(w, http.StatusOK, schemas.CloseSessionResponse{OK: true, Closed: res.Closed, Message: msg})
}

// dispatch runs cmd for sid and writes the generic message response.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, sid string, cmd session.Command) {
	res, err := s.manager.Dispatch(r.Context(), sid, cmd)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, schemas.MessageResponse{OK: true, Message: res.Message})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req schemas.NavigateRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	s.dispatch(w, r, req.SID, session.Command{Kind: session.KindNavigate, URL: req.URL})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req schemas.ClickRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	s.dispatch(w, r, req.SID, session.Command{Kind: session.KindClick, Selector: req.Selector})
}

func (s *Server) handleClickXY(w http.ResponseWriter, r *http.Request) {
	var req schemas.ClickXYRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	if req.ViewportW <= 0 || req.ViewportH <= 0 {
		s.respondError(w, schemas.E(schemas.CodeValidation, "viewportW and viewportH must be positive"))
		return
	}
	// Client display coordinates map onto the page viewport through the
	// natural/display ratio; without natural dimensions they are 1:1.
	scaleX, scaleY := 1.0, 1.0
	if req.NaturalW > 0 {
		scaleX = req.NaturalW / req.ViewportW
	}
	if req.NaturalH > 0 {
		scaleY = req.NaturalH / req.ViewportH
	}

	res, err := s.manager.Dispatch(r.Context(), req.SID, session.Command{
		Kind: session.KindClickAt, X: req.X, Y: req.Y, ScaleX: scaleX, ScaleY: scaleY,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, schemas.ClickXYResponse{OK: true, Message: res.Message, Hit: res.Hit})
}

func (s *Server) handleType(w http.ResponseWriter, r *http.Request) {
	var req schemas.TypeRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	s.dispatch(w, r, req.SID, session.Command{Kind: session.KindType, Selector: req.Selector, Text: req.Text})
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req schemas.ScrollRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	s.dispatch(w, r, req.SID, session.Command{Kind: session.KindScroll, Direction: req.Direction, Amount: req.Amount})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req schemas.HistoryRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	s.dispatch(w, r, req.SID, session.Command{Kind: session.KindHistory, Direction: req.Direction})
}

func (s *Server) handleDOM(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	res, err := s.manager.Dispatch(r.Context(), sid, session.Command{Kind: session.KindDOM})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, schemas.DomResponse{OK: true, Dom: res.DOM, Length: res.Chars, Title: res.Title})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	res, err := s.manager.Dispatch(r.Context(), sid, session.Command{Kind: session.KindScreenshot})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, schemas.ScreenshotResponse{
		OK: true, File: res.File, Width: res.Width, Height: res.Height,
	})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if err := s.requireActiveSession(sid); err != nil {
		s.respondError(w, err)
		return
	}
	evs := s.bus.Recent(sid)
	if evs == nil {
		evs = []schemas.Event{}
	}
	s.respond(w, http.StatusOK, schemas.RecentEventsResponse{OK: true, Events: evs})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.frames.Path(name)
	if err != nil {
		s.respondError(w, schemas.E(schemas.CodeValidation, "invalid frame name"))
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.respondError(w, schemas.E(schemas.CodeNotFound, "frame not found"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// requireActiveSession verifies sid addresses the current Active session,
// with the same classification dispatch would use.
func (s *Server) requireActiveSession(sid string) error {
	snap := s.manager.Snapshot()
	if snap.State != session.StateActive {
		return schemas.E(schemas.CodeBrowserNotOpen, "no browser session is open")
	}
	if sid != snap.SessionID {
		return schemas.Errorf(schemas.CodeSessionNotFound, "unknown session %q", sid)
	}
	return nil
}
