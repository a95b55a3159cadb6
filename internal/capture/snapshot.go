// Package capture renders the /timetable page to a PNG with headless
// Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"classboard/internal/config"
	appLog "classboard/internal/log"
)

// Defaults sized for a 7-column week grid.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 900
	DefaultTimeout = 30 * time.Second
)

// readySelector is set by the timetable page once the grid is rendered.
const readySelector = `[data-ready="true"]`

type Options struct {
	// URL of the page, e.g. "http://127.0.0.1:8080/timetable?week=3".
	URL string

	Width  int
	Height int

	Timeout time.Duration

	// ExecPath overrides the Chromium binary; empty uses chromedp's lookup.
	ExecPath string

	// Username/Password are sent as Basic Auth when the viewer requires it.
	Username string
	Password string

	// Tricolor reduces the PNG to the Tricolor palette for e-paper panels.
	Tricolor bool
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// Snapshot navigates to opts.URL, waits until the page reports
// data-ready="true" and returns a full-page PNG.
func Snapshot(parent context.Context, opts Options) ([]byte, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.WindowSize(opts.Width, opts.Height))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + token}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// Let web fonts settle.
		chromedp.Sleep(300*time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	if opts.Tricolor {
		reduced, err := ReduceTricolor(png)
		if err != nil {
			return nil, err
		}
		png = reduced
	}
	appLog.Info("timetable snapshot captured",
		"url", opts.URL,
		"bytes", len(png),
		"tricolor", opts.Tricolor,
		"elapsed", time.Since(start).String(),
	)
	return png, nil
}

// SnapshotToFile writes the PNG from Snapshot to path.
func SnapshotToFile(ctx context.Context, opts Options, path string) error {
	if path == "" {
		return fmt.Errorf("capture: output path is required")
	}
	png, err := Snapshot(ctx, opts)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(path, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
