package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// DefaultActionTimeout bounds a single browser action.
const DefaultActionTimeout = 10 * time.Second

// Options configures a Chrome session.
type Options struct {
	// RemoteURL attaches to an already running browser's DevTools websocket
	// instead of launching one.
	RemoteURL string

	// ExecPath overrides the Chrome binary.
	ExecPath string

	Headless       bool
	ViewportWidth  int
	ViewportHeight int

	// BasicUsername and BasicPassword are sent on every request when set.
	BasicUsername string
	BasicPassword string

	ActionTimeout time.Duration
	Logger        *slog.Logger
}

// Chrome drives a single tab over the DevTools protocol.
type Chrome struct {
	tab     context.Context
	cancel  func()
	timeout time.Duration
	logger  *slog.Logger
}

var _ Driver = (*Chrome)(nil)

// NewChrome starts (or attaches to) a browser and opens one tab.
// Close releases it.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		)
		if opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		opts.Logger.Debug(fmt.Sprintf(format, args...))
	}))

	c := &Chrome{
		tab: tab,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		timeout: opts.ActionTimeout,
		logger:  opts.Logger,
	}

	setup := []chromedp.Action{network.Enable()}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		setup = append(setup, chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)))
	}
	if opts.BasicUsername != "" {
		token := base64.StdEncoding.EncodeToString([]byte(opts.BasicUsername + ":" + opts.BasicPassword))
		setup = append(setup, network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + token}))
	}
	if err := chromedp.Run(tab, setup...); err != nil {
		c.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return c, nil
}

// Close shuts the tab and, if it was launched here, the browser.
func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

// run executes actions on the tab, bounded by the action timeout and by
// ctx's deadline and cancellation.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tab, c.timeout)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		runCtx, cancelDL = context.WithDeadline(runCtx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (c *Chrome) Click(ctx context.Context, sel string) error {
	return c.run(ctx,
		chromedp.ScrollIntoView(sel, chromedp.BySearch),
		chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible),
	)
}

func (c *Chrome) Fill(ctx context.Context, sel, value string) error {
	actions := []chromedp.Action{chromedp.Clear(sel, chromedp.BySearch)}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(sel, value, chromedp.BySearch))
	}
	return c.run(ctx, actions...)
}

func (c *Chrome) Press(ctx context.Context, sel, chord string) error {
	keys, mods, err := parseChord(chord)
	if err != nil {
		return err
	}
	var opts []chromedp.KeyOption
	if mods != 0 {
		opts = append(opts, chromedp.KeyModifiers(mods))
	}
	return c.run(ctx,
		chromedp.Focus(sel, chromedp.BySearch),
		chromedp.KeyEvent(keys, opts...),
	)
}

func (c *Chrome) WaitVisible(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitVisible(sel, chromedp.BySearch))
}

func (c *Chrome) WaitHidden(ctx context.Context, sel string) error {
	var hidden bool
	return c.run(ctx, chromedp.Poll(fmt.Sprintf(hiddenJS, jsString(sel)), &hidden,
		chromedp.WithPollingInterval(100*time.Millisecond)))
}

func (c *Chrome) WaitAttached(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitReady(sel, chromedp.BySearch))
}

func (c *Chrome) Count(ctx context.Context, sel string) (int, error) {
	var nodes []*cdp.Node
	err := c.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	return len(nodes), err
}

func (c *Chrome) Text(ctx context.Context, sel string) (string, error) {
	var text string
	err := c.run(ctx, chromedp.Text(sel, &text, chromedp.BySearch, chromedp.NodeVisible))
	return text, err
}

func (c *Chrome) Disabled(ctx context.Context, sel string) (bool, error) {
	if err := c.WaitAttached(ctx, sel); err != nil {
		return false, err
	}
	var disabled bool
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(disabledJS, jsString(sel)), &disabled))
	return disabled, err
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

const hiddenJS = `(() => {
	const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	for (let i = 0; i < r.snapshotLength; i++) {
		const n = r.snapshotItem(i);
		if (n.getClientRects && n.getClientRects().length > 0) return false;
	}
	return true;
})()`

const disabledJS = `(() => {
	const n = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return false;
	if (n.disabled) return true;
	for (let e = n; e && e.getAttribute; e = e.parentElement) {
		if (e.getAttribute('aria-disabled') === 'true') return true;
		if (e.classList && e.classList.contains('select2-container--disabled')) return true;
	}
	return false;
})()`

func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

var namedKeys = map[string]string{
	"Enter":     kb.Enter,
	"Delete":    kb.Delete,
	"Backspace": kb.Backspace,
	"Escape":    kb.Escape,
	"Tab":       kb.Tab,
}

// parseChord splits "Control+A" into the key and its modifier mask.
func parseChord(chord string) (string, input.Modifier, error) {
	parts := strings.Split(chord, "+")
	key := parts[len(parts)-1]
	var mods input.Modifier
	for _, m := range parts[:len(parts)-1] {
		switch m {
		case "Control":
			mods |= input.ModifierCtrl
		case "Shift":
			mods |= input.ModifierShift
		case "Alt":
			mods |= input.ModifierAlt
		case "Meta":
			mods |= input.ModifierMeta
		default:
			return "", 0, fmt.Errorf("unknown key modifier %q in %q", m, chord)
		}
	}
	if named, ok := namedKeys[key]; ok {
		return named, mods, nil
	}
	if len([]rune(key)) != 1 {
		return "", 0, fmt.Errorf("unknown key %q in %q", key, chord)
	}
	if mods&input.ModifierShift == 0 {
		key = strings.ToLower(key)
	}
	return key, mods, nil
}
