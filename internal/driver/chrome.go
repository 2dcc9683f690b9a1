// File: internal/driver/chrome.go
package driver

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/config"
)

// Chrome launches real Chrome processes over the DevTools protocol.
type Chrome struct {
	cfg config.BrowserConfig
	log *zap.Logger
}

func NewChrome(cfg config.BrowserConfig, logger *zap.Logger) *Chrome {
	return &Chrome{cfg: cfg, log: logger.Named("driver")}
}

// Launch starts a Chrome process and warms it up. The returned handle owns
// the process; its lifetime is independent of the launch context.
func (c *Chrome) Launch(ctx context.Context, headless bool) (Handle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(c.cfg, headless)...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser; doing it here surfaces launch
	// failures at start time instead of on the first action.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	if err := ctx.Err(); err != nil {
		taskCancel()
		allocCancel()
		return nil, err
	}

	c.log.Info("Browser launched.", zap.Bool("headless", headless))
	return &chromeHandle{
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		cfg:         c.cfg,
		log:         c.log,
	}, nil
}

type chromeHandle struct {
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	log         *zap.Logger
	closeOnce   sync.Once
}

// run executes actions against the handle's target, honoring both the
// caller's context and the per-operation timeout. The chromedp target rides
// on taskCtx, so the operation context must derive from it.
func (h *chromeHandle) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(h.taskCtx, ctx)
	defer cancel()

	if timeout > 0 {
		var tcancel context.CancelFunc
		opCtx, tcancel = context.WithTimeout(opCtx, timeout)
		defer tcancel()
	}
	return chromedp.Run(opCtx, actions...)
}

func (h *chromeHandle) Navigate(ctx context.Context, url string) error {
	h.log.Debug("Navigating.", zap.String("url", url))
	return h.run(ctx, h.cfg.NavTimeout, chromedp.Navigate(url))
}

func (h *chromeHandle) Click(ctx context.Context, selector string) error {
	h.log.Debug("Clicking.", zap.String("selector", selector))
	return h.run(ctx, h.cfg.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (h *chromeHandle) TypeText(ctx context.Context, selector, text string) error {
	h.log.Debug("Typing.", zap.String("selector", selector))
	return h.run(ctx, h.cfg.ActionTimeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text+kb.Enter, chromedp.ByQuery),
	)
}

func (h *chromeHandle) Scroll(ctx context.Context, direction string, amount int) error {
	dx, dy, err := scrollDelta(direction, amount)
	if err != nil {
		return err
	}
	script := fmt.Sprintf("window.scrollBy(%d, %d);", dx, dy)
	return h.run(ctx, h.cfg.ActionTimeout, chromedp.Evaluate(script, nil))
}

func (h *chromeHandle) History(ctx context.Context, direction string) error {
	switch direction {
	case HistoryBack:
		return h.run(ctx, h.cfg.NavTimeout, chromedp.NavigateBack())
	case HistoryForward:
		return h.run(ctx, h.cfg.NavTimeout, chromedp.NavigateForward())
	default:
		return fmt.Errorf("unknown history direction %q", direction)
	}
}

func (h *chromeHandle) SnapshotDOM(ctx context.Context) (string, error) {
	var dom string
	err := h.run(ctx, h.cfg.ActionTimeout,
		chromedp.Evaluate("document.documentElement.outerHTML", &dom))
	if err != nil {
		return "", err
	}
	return truncate(dom, h.cfg.DOMMaxChars), nil
}

func (h *chromeHandle) CaptureScreenshot(ctx context.Context) ([]byte, int, int, error) {
	var buf []byte
	if err := h.run(ctx, h.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, 0, 0, err
	}
	width, height := pngDims(buf)
	return buf, width, height, nil
}

// hitTestScript click-tests the element under a point. Rect keys match
// schemas.Rect so the result unmarshals directly.
const hitTestScript = `(() => {
	const x = %v, y = %v;
	const el = document.elementFromPoint(x, y);
	if (!el) return { ok: false, reason: 'no_element' };
	try { el.scrollIntoView({ block: 'center', inline: 'center' }); } catch (e) {}
	const r = el.getBoundingClientRect();
	try {
		el.click();
		return { ok: true, tag: el.tagName, rect: { x: r.x, y: r.y, w: r.width, h: r.height } };
	} catch (e) {
		return { ok: false, reason: e && e.message ? e.message : String(e) };
	}
})()`

func (h *chromeHandle) ClickAt(ctx context.Context, x, y, scaleX, scaleY float64) (*schemas.HitTestResult, error) {
	vx, vy := x*scaleX, y*scaleY
	if !isFinite(vx) || !isFinite(vy) {
		return nil, fmt.Errorf("non-finite click coordinates (%v, %v)", vx, vy)
	}
	h.log.Debug("Coordinate click.", zap.Float64("x", vx), zap.Float64("y", vy))

	var res schemas.HitTestResult
	err := h.run(ctx, h.cfg.ActionTimeout, chromedp.Evaluate(
		fmt.Sprintf(hitTestScript, vx, vy),
		&res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		},
	))
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Close shuts the browser down gracefully and releases the process. Safe to
// call multiple times and concurrently with in-flight operations, which fail
// with a canceled context.
func (h *chromeHandle) Close(_ context.Context) error {
	h.closeOnce.Do(func() {
		if err := chromedp.Cancel(h.taskCtx); err != nil {
			h.log.Debug("Graceful browser shutdown failed.", zap.Error(err))
		}
		h.taskCancel()
		h.allocCancel()
		h.log.Info("Browser closed.")
	})
	return nil
}

func scrollDelta(direction string, amount int) (dx, dy int, err error) {
	switch direction {
	case ScrollDown, "":
		return 0, amount, nil
	case ScrollUp:
		return 0, -amount, nil
	case ScrollRight:
		return amount, 0, nil
	case ScrollLeft:
		return -amount, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown scroll direction %q", direction)
	}
}

// truncate bounds s to max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// pngDims decodes the image header only. Dimensions of an undecodable buffer
// report as zero rather than failing the capture.
func pngDims(buf []byte) (int, int) {
	cfg, err := png.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
