// File: internal/driver/options.go
package driver

import (
	"github.com/chromedp/chromedp"

	"github.com/robit-man/web-scrape-service/internal/config"
)

// AllocatorOptions builds the exec allocator options for one Chrome launch.
// The flag set matches what the service has always run with: no sandbox and
// no /dev/shm so it behaves inside containers, GPU off since rendering is
// never displayed.
func AllocatorOptions(cfg config.BrowserConfig, headless bool) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("remote-allow-origins", "*"),
	}
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}
