// Package browser defines the narrow browser surface the check flows drive,
// and its Chrome DevTools implementation.
//
// Selectors are XPath 1.0 expressions. Every waiting call is bounded by the
// caller's context and by the driver's per-action timeout; on expiry the
// returned error wraps context.DeadlineExceeded.
package browser

import (
	"context"
)

// Driver is one browser tab.
type Driver interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error

	// Location returns the current URL.
	Location(ctx context.Context) (string, error)

	Click(ctx context.Context, sel string) error

	// Fill replaces the value of the input matched by sel.
	Fill(ctx context.Context, sel, value string) error

	// Press sends a key chord such as "Enter" or "Control+A" to sel.
	Press(ctx context.Context, sel, chord string) error

	WaitVisible(ctx context.Context, sel string) error

	// WaitHidden waits until no node matched by sel is visible. A selector
	// that matches nothing counts as hidden.
	WaitHidden(ctx context.Context, sel string) error

	// WaitAttached waits until sel matches a node, visible or not.
	WaitAttached(ctx context.Context, sel string) error

	// Count returns how many nodes sel matches right now, without waiting.
	Count(ctx context.Context, sel string) (int, error)

	// Text returns the text content of the first visible node matched by sel.
	Text(ctx context.Context, sel string) (string, error)

	// Disabled reports whether the node matched by sel, or the widget it
	// belongs to, refuses interaction.
	Disabled(ctx context.Context, sel string) (bool, error)

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is a driver bound to the application it is testing.
type Session struct {
	Driver  Driver
	BaseURL string
}
