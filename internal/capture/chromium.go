package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"tftfb/internal/ili9341"
)

// Viewport defaults match the panel so screenshots need no scaling.
const (
	DefaultWidth   = ili9341.Width
	DefaultHeight  = ili9341.Height
	DefaultTimeout = 30 * time.Second
	settleDelay    = 250 * time.Millisecond
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:3000/dashboard".
	URL string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture. If zero, DefaultTimeout is used.
	Timeout time.Duration

	// WaitSelector, if set, is waited for before the screenshot is taken.
	// Pages that load data asynchronously can expose e.g. data-ready="true".
	WaitSelector string
}

// Func captures a page and returns encoded PNG bytes.
type Func func(ctx context.Context, opts Options) ([]byte, error)

// PNG launches a headless Chromium instance via chromedp, renders opts.URL at
// the requested viewport and returns the screenshot as PNG bytes.
func PNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if opts.URL == "" {
		return nil, errors.New("capture: URL is required")
	}
	opts = opts.withDefaults()

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	if err := chromedp.Run(ctx, opts.tasks(&png)); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

func (o Options) tasks(png *[]byte) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
		chromedp.Navigate(o.URL),
	}
	if o.WaitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(o.WaitSelector, chromedp.ByQuery))
	}
	// Let late paints land.
	tasks = append(tasks,
		chromedp.Sleep(settleDelay),
		chromedp.CaptureScreenshot(png),
	)
	return tasks
}
