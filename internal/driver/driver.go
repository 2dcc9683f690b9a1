// File: internal/driver/driver.go

// Package driver defines the automation driver contract: launching one
// browser and operating on it. The session manager is the only caller; it
// treats every implementation uniformly, so test doubles slot in without
// touching admission or event logic.
package driver

import (
	"context"

	"github.com/robit-man/web-scrape-service/api/schemas"
)

// Canonical direction arguments shared by the wire layer and implementations.
const (
	ScrollUp    = "up"
	ScrollDown  = "down"
	ScrollLeft  = "left"
	ScrollRight = "right"

	HistoryBack    = "back"
	HistoryForward = "forward"
)

// Driver launches browser instances.
type Driver interface {
	// Launch starts one browser and returns its handle. On error no browser
	// is left running.
	Launch(ctx context.Context, headless bool) (Handle, error)
}

// Handle operates one live browser. Operations honor ctx cancellation and
// return an error once the handle is closed; Close is idempotent.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	// ClickAt hit-tests and clicks the element at the given client coordinates
	// multiplied by the per-axis scale. A miss is reported in the result, not
	// as an error.
	ClickAt(ctx context.Context, x, y, scaleX, scaleY float64) (*schemas.HitTestResult, error)
	// TypeText clears the field, types text and submits it.
	TypeText(ctx context.Context, selector, text string) error
	Scroll(ctx context.Context, direction string, amount int) error
	History(ctx context.Context, direction string) error
	// SnapshotDOM serializes the document, bounded by the configured length cap.
	SnapshotDOM(ctx context.Context) (string, error)
	// CaptureScreenshot returns PNG bytes plus the decoded pixel dimensions.
	CaptureScreenshot(ctx context.Context) ([]byte, int, int, error)
	Close(ctx context.Context) error
}
