package cdprender

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/chromedp/chromedp"
)

// HeadlessOptions configures LaunchHeadless.
type HeadlessOptions struct {
	Address    string
	Port       int
	ChartURL   string
	WindowSize [2]int
	// ExecPath overrides browser detection.
	ExecPath string
}

// Headless is a browser started by LaunchHeadless. CDPURL is ready for
// Config.CDPURL.
type Headless struct {
	CDPURL string

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func portInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", address, port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// LaunchHeadless starts a headless browser with remote debugging on
// address:port and opens the chart page. If the port is already taken the
// running browser is reused and nothing is launched.
func LaunchHeadless(ctx context.Context, opts HeadlessOptions) (*Headless, error) {
	if opts.Address == "" {
		opts.Address = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 9222
	}
	if opts.WindowSize == [2]int{} {
		opts.WindowSize = [2]int{1280, 800}
	}
	h := &Headless{CDPURL: fmt.Sprintf("http://%s:%d", opts.Address, opts.Port)}
	if portInUse(opts.Address, opts.Port) {
		slog.Info("browser already listening, skipping launch", "address", opts.Address, "port", opts.Port)
		return h, nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("remote-debugging-port", fmt.Sprint(opts.Port)),
		chromedp.Flag("remote-debugging-address", opts.Address),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.WindowSize[0], opts.WindowSize[1]),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// The browser outlives ctx; Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	h.allocCancel = allocCancel
	h.browserCancel = browserCancel

	// The first Run allocates the browser and must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		h.Close()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	if opts.ChartURL != "" {
		navCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		if err := chromedp.Run(navCtx, chromedp.Navigate(opts.ChartURL), chromedp.WaitReady("body")); err != nil {
			h.Close()
			return nil, fmt.Errorf("open chart page: %w", err)
		}
	}
	slog.Info("headless browser started", "cdp_url", h.CDPURL, "chart_url", opts.ChartURL)
	return h, nil
}

// Close stops a browser launched by LaunchHeadless. It is a no-op for a
// reused browser.
func (h *Headless) Close() {
	if h.browserCancel != nil {
		h.browserCancel()
	}
	if h.allocCancel != nil {
		h.allocCancel()
	}
}
