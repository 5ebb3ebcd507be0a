// Package cdp drives Chrome over the DevTools protocol with chromedp.
package cdp

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/config"
)

const launchTimeout = 30 * time.Second

// hides navigator.webdriver before any environment script runs.
const webdriverEvasion = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// Launcher starts one Chrome process per driver.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("cdp")}
}

// Launch allocates the browser, opens a tab and applies device emulation.
// ctx bounds startup only; the browser lives until Close.
func (l *Launcher) Launch(ctx context.Context, profile schemas.DeviceProfile) (browser.Driver, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(profile)...)

	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(l.logger.Sugar().Debugf)}
	if l.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(l.logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	d := &Driver{
		ctx:     tabCtx,
		profile: profile,
		logger:  l.logger.With(zap.String("platform", string(profile.Platform))),
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	d.runActionsFunc = d.runActions

	startCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	// The first Run on the tab context allocates the browser; it must run on
	// tabCtx itself or the browser dies with the startup deadline.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, emulationTasks(profile)) }()

	select {
	case err := <-done:
		if err != nil {
			d.cancel()
			return nil, fmt.Errorf("browser failed to start: %w", err)
		}
	case <-startCtx.Done():
		d.cancel()
		return nil, fmt.Errorf("browser failed to start: %w", startCtx.Err())
	}

	d.logger.Info("Browser launched.",
		zap.Int64("width", profile.Width),
		zap.Int64("height", profile.Height),
		zap.Float64("dpr", profile.DeviceScaleFactor),
		zap.Bool("headless", profile.Headless))
	return d, nil
}

// allocatorOptions assembles launch flags. Later flags override the
// defaults, and a false boolean flag is omitted from the command line.
func (l *Launcher) allocatorOptions(profile schemas.DeviceProfile) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", profile.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(int(profile.Width), int(profile.Height)),
		chromedp.UserAgent(profile.UserAgent),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}

	for _, arg := range l.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Container friendly.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// emulationTasks applies the device profile to the tab.
func emulationTasks(p schemas.DeviceProfile) chromedp.Tasks {
	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(p.Width, p.Height, p.DeviceScaleFactor, p.Mobile),
		emulation.SetUserAgentOverride(p.UserAgent).WithAcceptLanguage(p.Locale),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(webdriverEvasion).Do(ctx)
			return err
		}),
	}
	if p.Touch {
		tasks = append(tasks, emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(5))
	}
	return tasks
}
