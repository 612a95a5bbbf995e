package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// BrowserRunner loads a page and reports what it observed
type BrowserRunner interface {
	Collect(ctx context.Context, url string) (*Signals, error)
}

const probeScript = `(() => {
  const body = document.body;
  const bodyText = body ? (body.innerText || '').trim().slice(0, 2000) : '';
  const root = document.querySelector('#root, #app, #__next, #__nuxt, #svelte, [data-reactroot], app-root');
  const hasRoot = !!root && (root.children.length > 0 || (root.textContent || '').trim().length > 0);
  const selectors = ['vite-error-overlay', 'nextjs-portal', '[data-nextjs-dialog]', '#webpack-dev-server-client-overlay', '#react-refresh-overlay', 'astro-dev-overlay'];
  let overlay = {present: false, visible: false, text: ''};
  for (const sel of selectors) {
    const el = document.querySelector(sel);
    if (!el) continue;
    const style = getComputedStyle(el);
    const z = parseInt(style.zIndex, 10);
    const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
      parseFloat(style.opacity || '1') > 0 && (isNaN(z) || z >= 0);
    const text = (el.shadowRoot && el.shadowRoot.textContent) || el.innerText || el.textContent || '';
    overlay = {present: true, visible: visible, text: text.trim().slice(0, 4000)};
    if (visible) break;
  }
  return {bodyText: bodyText, title: document.title || '', hasRoot: hasRoot, overlay: overlay};
})()`

// ChromeRunner drives a headless Chrome through the DevTools protocol
type ChromeRunner struct {
	ExecPath   string
	ProbeDelay time.Duration
}

// NewChromeRunner returns a runner for the browser at execPath
func NewChromeRunner(execPath string, probeDelay time.Duration) *ChromeRunner {
	return &ChromeRunner{ExecPath: execPath, ProbeDelay: probeDelay}
}

// Collect opens url in a fresh headless browser, records console errors,
// uncaught exceptions and failed responses, and probes the DOM once after
// ProbeDelay. The browser is closed before returning.
func (r *ChromeRunner) Collect(ctx context.Context, url string) (*Signals, error) {
	if r.ExecPath == "" {
		return nil, ErrBrowserUnavailable
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(r.ExecPath),
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var (
		mu  sync.Mutex
		sig Signals
	)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if ev.Type == runtime.APITypeError {
				sig.Console = append(sig.Console, consoleText(ev.Args))
			}
		case *runtime.EventExceptionThrown:
			if ev.ExceptionDetails != nil {
				sig.PageErrors = append(sig.PageErrors, exceptionError(ev.ExceptionDetails))
			}
		case *network.EventResponseReceived:
			if ev.Response != nil && ev.Response.Status >= 400 {
				sig.Network = append(sig.Network, NetworkFailure{URL: ev.Response.URL, Status: int(ev.Response.Status)})
			}
		}
	})

	var probe Probe
	err := chromedp.Run(browserCtx,
		network.Enable(),
		runtime.Enable(),
		chromedp.Navigate(url),
		chromedp.Sleep(r.ProbeDelay),
		chromedp.Evaluate(probeScript, &probe),
	)
	if err != nil {
		return nil, fmt.Errorf("browser session for %s: %w", url, err)
	}

	mu.Lock()
	defer mu.Unlock()
	sig.Probe = &probe
	return &sig, nil
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if len(a.Value) > 0 {
			var s string
			if json.Unmarshal([]byte(a.Value), &s) == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(a.Value))
			}
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func exceptionError(d *runtime.ExceptionDetails) PageError {
	text := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		text = d.Exception.Description
	}

	var stack []string
	if d.URL != "" {
		stack = append(stack, d.URL)
	}
	if d.StackTrace != nil {
		for _, f := range d.StackTrace.CallFrames {
			stack = append(stack, f.URL+" "+f.FunctionName)
		}
	}
	return PageError{Text: text, Stack: strings.Join(stack, "\n")}
}
