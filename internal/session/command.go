// File: internal/session/command.go
package session

import (
	"math"
	"strings"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/driver"
)

// Kind tags the browser action a Command requests.
type Kind string

const (
	KindNavigate   Kind = "navigate"
	KindClick      Kind = "click"
	KindClickAt    Kind = "click_xy"
	KindType       Kind = "type"
	KindScroll     Kind = "scroll"
	KindHistory    Kind = "history"
	KindDOM        Kind = "dom"
	KindScreenshot Kind = "screenshot"
)

// Command is the tagged variant dispatched against the active session. Only
// the fields relevant to its Kind are read.
type Command struct {
	Kind Kind

	URL      string // navigate
	Selector string // click, type
	Text     string // type

	X, Y           float64 // click_xy, client-display coordinates
	ScaleX, ScaleY float64 // click_xy, per-axis display-to-viewport scale

	Direction string // scroll (up/down/left/right), history (back/forward)
	Amount    int    // scroll distance in pixels
}

// Validate rejects commands that could never be dispatched, before any
// admission work happens.
func (c Command) Validate() error {
	switch c.Kind {
	case KindNavigate:
		if strings.TrimSpace(c.URL) == "" {
			return schemas.E(schemas.CodeValidation, "missing url")
		}
	case KindClick:
		if strings.TrimSpace(c.Selector) == "" {
			return schemas.E(schemas.CodeValidation, "missing selector")
		}
	case KindType:
		if strings.TrimSpace(c.Selector) == "" {
			return schemas.E(schemas.CodeValidation, "missing selector")
		}
	case KindClickAt:
		if !finite(c.X) || !finite(c.Y) {
			return schemas.E(schemas.CodeValidation, "invalid coordinates")
		}
		if !finite(c.ScaleX) || !finite(c.ScaleY) || c.ScaleX <= 0 || c.ScaleY <= 0 {
			return schemas.E(schemas.CodeValidation, "invalid viewport dimensions")
		}
	case KindScroll:
		switch c.Direction {
		case "", driver.ScrollUp, driver.ScrollDown, driver.ScrollLeft, driver.ScrollRight:
		default:
			return schemas.Errorf(schemas.CodeValidation, "unknown scroll direction %q", c.Direction)
		}
	case KindHistory:
		if c.Direction != driver.HistoryBack && c.Direction != driver.HistoryForward {
			return schemas.Errorf(schemas.CodeValidation, "history direction must be %q or %q",
				driver.HistoryBack, driver.HistoryForward)
		}
	case KindDOM, KindScreenshot:
	default:
		return schemas.Errorf(schemas.CodeValidation, "unknown command kind %q", c.Kind)
	}
	return nil
}

// Result carries the outcome of one dispatched command; which fields are set
// depends on the command kind.
type Result struct {
	Message string
	Hit     *schemas.HitTestResult
	DOM     string
	Chars   int
	Title   string
	File    string
	Width   int
	Height  int
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
