// File: internal/session/manager.go

// Package session owns the single browser slot. The manager is the only
// component that holds or mutates the driver handle; everything else reaches
// the browser through Dispatch.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/driver"
	"github.com/robit-man/web-scrape-service/internal/events"
	"github.com/robit-man/web-scrape-service/internal/gate"
)

// State is the slot's lifecycle phase.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// FrameSink persists captured screenshots and names them. The returned name
// is a bare file name; the manager derives the public URL path from it.
type FrameSink interface {
	Save(png []byte) (name string, err error)
}

// StartResult reports a successful session start.
type StartResult struct {
	SessionID string
	Headless  bool
}

// CloseResult reports whether Close actually tore a session down.
type CloseResult struct {
	Closed bool
}

// Snapshot is a point-in-time view of the slot for health reporting.
type Snapshot struct {
	State     State
	SessionID string
	Headless  bool
	StartedAt time.Time
}

// Manager is the single-slot session state machine. At most one session is
// Active at any time; starting a new one force-replaces the prior. All
// browser work, including launch and teardown, passes through the
// concurrency gate.
type Manager struct {
	drv          driver.Driver
	gate         *gate.Gate
	bus          *events.Bus
	frames       FrameSink
	queueTimeout time.Duration
	log          *zap.Logger

	mu        sync.Mutex
	state     State
	sid       string
	headless  bool
	startedAt time.Time
	handle    driver.Handle
}

// NewManager builds an Idle manager.
func NewManager(drv driver.Driver, g *gate.Gate, bus *events.Bus, frames FrameSink, queueTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		drv:          drv,
		gate:         g,
		bus:          bus,
		frames:       frames,
		queueTimeout: queueTimeout,
		log:          logger.Named("session"),
		state:        StateIdle,
	}
}

// Start launches a browser and makes it the active session. Any existing
// session is torn down first so replacement is a hard reset: its id stops
// validating and its event stream terminates. A launch failure leaves the
// slot Idle with no partial state.
func (m *Manager) Start(ctx context.Context, headless bool) (StartResult, error) {
	release, err := m.gate.Acquire(ctx, m.queueTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked(ctx)

	handle, err := m.drv.Launch(ctx, headless)
	if err != nil {
		return StartResult{}, schemas.Wrap(schemas.CodeDriver, "browser launch failed", err)
	}

	sid := uuid.NewString()
	m.state = StateActive
	m.sid = sid
	m.headless = headless
	m.startedAt = time.Now()
	m.handle = handle

	m.bus.Open(sid)
	m.bus.Publish(sid, schemas.NewStatusEvent(sid, "browser_started", map[string]any{
		"headless": headless,
	}))

	m.log.Info("Session started.", zap.String("session_id", sid), zap.Bool("headless", headless))
	return StartResult{SessionID: sid, Headless: headless}, nil
}

// Close tears the active session down: the browser is shut, the session id
// stops validating, and attached event streams observe termination. Closing
// an Idle slot is a no-op reported through the result.
func (m *Manager) Close(ctx context.Context) (CloseResult, error) {
	release, err := m.gate.Acquire(ctx, m.queueTimeout)
	if err != nil {
		return CloseResult{}, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return CloseResult{Closed: false}, nil
	}
	sid := m.sid
	m.teardownLocked(ctx)
	m.log.Info("Session closed.", zap.String("session_id", sid))
	return CloseResult{Closed: true}, nil
}

// teardownLocked shuts down any active session. Caller holds m.mu.
func (m *Manager) teardownLocked(ctx context.Context) {
	if m.state != StateActive {
		return
	}
	if err := m.handle.Close(ctx); err != nil {
		m.log.Warn("Browser shutdown reported an error.",
			zap.String("session_id", m.sid), zap.Error(err))
	}
	m.bus.Close(m.sid)
	m.state = StateIdle
	m.sid = ""
	m.headless = false
	m.startedAt = time.Time{}
	m.handle = nil
}

// Dispatch runs one command against the session identified by sid. The
// structural checks (validation, slot state, id match) short-circuit before
// any admission work; only a matching command acquires a gate permit and
// touches the driver. Driver failures come back as classified errors with
// the slot still Active and the permit returned.
func (m *Manager) Dispatch(ctx context.Context, sid string, cmd Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return Result{}, schemas.E(schemas.CodeBrowserNotOpen, "no browser session is open")
	}
	if sid != m.sid {
		m.mu.Unlock()
		return Result{}, schemas.Errorf(schemas.CodeSessionNotFound, "unknown session %q", sid)
	}
	handle := m.handle
	m.mu.Unlock()

	release, err := m.gate.Acquire(ctx, m.queueTimeout)
	if err != nil {
		return Result{}, err
	}
	defer release()

	res, err := m.execute(ctx, sid, handle, cmd)
	if err != nil {
		m.log.Warn("Command failed.",
			zap.String("session_id", sid), zap.String("kind", string(cmd.Kind)), zap.Error(err))
		return Result{}, err
	}
	return res, nil
}

// execute performs the driver call for cmd and publishes the resulting
// event. A session closed mid-flight surfaces here as a driver error on the
// captured handle, never as a crash.
func (m *Manager) execute(ctx context.Context, sid string, handle driver.Handle, cmd Command) (Result, error) {
	switch cmd.Kind {
	case KindNavigate:
		if err := handle.Navigate(ctx, cmd.URL); err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "navigation failed", err)
		}
		m.bus.Publish(sid, schemas.NewStatusEvent(sid, "navigated", map[string]any{"url": cmd.URL}))
		return Result{Message: "navigated"}, nil

	case KindClick:
		if err := handle.Click(ctx, cmd.Selector); err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "click failed", err)
		}
		m.bus.Publish(sid, schemas.NewStatusEvent(sid, "clicked", map[string]any{"selector": cmd.Selector}))
		return Result{Message: "clicked"}, nil

	case KindClickAt:
		hit, err := handle.ClickAt(ctx, cmd.X, cmd.Y, cmd.ScaleX, cmd.ScaleY)
		if err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "coordinate click failed", err)
		}
		m.bus.Publish(sid, schemas.NewStatusEvent(sid, "click_xy", hit))
		return Result{Message: "clicked", Hit: hit}, nil

	case KindType:
		if err := handle.TypeText(ctx, cmd.Selector, cmd.Text); err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "typing failed", err)
		}
		m.bus.Publish(sid, schemas.NewStatusEvent(sid, "typed", map[string]any{"selector": cmd.Selector}))
		return Result{Message: "typed"}, nil

	case KindScroll:
		direction := cmd.Direction
		if direction == "" {
			direction = driver.ScrollDown
		}
		amount := cmd.Amount
		if amount <= 0 {
			amount = 600
		}
		if err := handle.Scroll(ctx, direction, amount); err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "scroll failed", err)
		}
		m.bus.Publish(sid, schemas.NewStatusEvent(sid, "scrolled", map[string]any{
			"direction": direction, "amount": amount,
		}))
		return Result{Message: "scrolled"}, nil

	case KindHistory:
		if err := handle.History(ctx, cmd.Direction); err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "history navigation failed", err)
		}
		m.bus.Publish(sid, schemas.NewStatusEvent(sid, "history_"+cmd.Direction, nil))
		return Result{Message: "history_" + cmd.Direction}, nil

	case KindDOM:
		dom, err := handle.SnapshotDOM(ctx)
		if err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "dom snapshot failed", err)
		}
		title := pageTitle(dom)
		m.bus.Publish(sid, schemas.NewDomEvent(sid, len(dom), title))
		return Result{DOM: dom, Chars: len(dom), Title: title}, nil

	case KindScreenshot:
		buf, width, height, err := handle.CaptureScreenshot(ctx)
		if err != nil {
			return Result{}, schemas.Wrap(schemas.CodeDriver, "screenshot failed", err)
		}
		name, err := m.frames.Save(buf)
		if err != nil {
			return Result{}, schemas.Wrap(schemas.CodeInternal, "storing screenshot failed", err)
		}
		file := "/frames/" + name
		m.bus.Publish(sid, schemas.NewFrameEvent(sid, file, width, height))
		return Result{File: file, Width: width, Height: height}, nil

	default:
		// Validate catches unknown kinds; this is unreachable for wire input.
		return Result{}, schemas.Errorf(schemas.CodeValidation, "unknown command kind %q", cmd.Kind)
	}
}

// Snapshot reports the slot's current state without touching the driver.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		SessionID: m.sid,
		Headless:  m.headless,
		StartedAt: m.startedAt,
	}
}

// pageTitle extracts the document title from an HTML snapshot. Snapshots are
// already length-bounded, so a full parse stays cheap; unparseable input
// yields an empty title.
func pageTitle(dom string) string {
	doc, err := html.Parse(strings.NewReader(dom))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
