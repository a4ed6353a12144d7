package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

/*
Render is the per-worker JS-rendering agent (C9). Each worker owns its own
Agent and its own browser context — an Agent is never shared across
goroutines, the same way a worker's fetcher and frontier lease are its own.

Responsibilities
- Navigate a URL in a headless Chrome instance
- Wait for the DOM to settle
- Return the fully rendered outer HTML

Knows nothing about classification, persistence, or the frontier.
*/

// Agent owns one headless Chrome tab for the lifetime of the worker that
// created it.
type Agent struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	timeout     time.Duration
}

// NewAgent starts a dedicated headless Chrome context. Close must be
// called when the owning worker shuts down.
func NewAgent(timeout time.Duration) *Agent {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	return &Agent{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		timeout:     timeout,
	}
}

// Close tears down the browser tab and its allocator.
func (a *Agent) Close() {
	a.cancel()
	a.allocCancel()
}

// Render navigates to pageURL, waits for the body to be ready, and returns
// the fully rendered document's outer HTML.
func (a *Agent) Render(ctx context.Context, pageURL string) (string, error) {
	runCtx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	return html, nil
}
