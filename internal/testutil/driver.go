package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/upcheck/internal/browser"
)

var _ browser.Driver = (*FakeDriver)(nil)

// FakeDriver is an in-memory browser.Driver. It records every call and
// succeeds unless a failure was scripted for a matching selector.
type FakeDriver struct {
	mu        sync.Mutex
	calls     []string
	location  string
	redirects map[string]string
	failures  []fakeFailure
	texts     map[string]string
	disabled  map[string]bool
	counts    map[string]int
	shot      []byte
}

type fakeFailure struct {
	method string
	substr string
	err    error
	times  int // 0 = always
}

// NewFakeDriver returns a driver whose page is blank.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		location:  "about:blank",
		redirects: make(map[string]string),
		texts:     make(map[string]string),
		disabled:  make(map[string]bool),
		counts:    make(map[string]int),
		shot:      []byte("\x89PNG fake"),
	}
}

// Redirect makes Navigate(from) land on to.
func (d *FakeDriver) Redirect(from, to string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.redirects[from] = to
}

// Fail makes method calls whose selector contains substr return err.
// method is the Driver method name, e.g. "WaitVisible".
func (d *FakeDriver) Fail(method, substr string, err error) {
	d.FailTimes(method, substr, err, 0)
}

// FailTimes is Fail limited to the first n matching calls.
func (d *FakeDriver) FailTimes(method, substr string, err error, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, fakeFailure{method: method, substr: substr, err: err, times: n})
}

// SetText scripts Text for selectors containing substr.
func (d *FakeDriver) SetText(substr, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts[substr] = text
}

// SetDisabled scripts Disabled for selectors containing substr.
func (d *FakeDriver) SetDisabled(substr string, disabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled[substr] = disabled
}

// SetCount scripts Count for selectors containing substr.
func (d *FakeDriver) SetCount(substr string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[substr] = n
}

// Calls returns "Method selector[ value]" for every call, in order.
func (d *FakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallsTo returns the recorded calls of one method.
func (d *FakeDriver) CallsTo(method string) []string {
	var out []string
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, method+" ") {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps scripted behavior.
func (d *FakeDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// record logs the call and returns the scripted failure, if any.
func (d *FakeDriver) record(ctx context.Context, method, sel string, extra ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	entry := method + " " + sel
	for _, e := range extra {
		entry += " " + e
	}
	d.calls = append(d.calls, entry)

	for i := range d.failures {
		f := &d.failures[i]
		if f.method != method || !strings.Contains(sel, f.substr) {
			continue
		}
		if f.times < 0 {
			continue
		}
		if f.times > 0 {
			f.times--
			if f.times == 0 {
				f.times = -1
			}
		}
		return f.err
	}
	return nil
}

func lookup[V any](m map[string]V, sel string) (V, bool) {
	// Longest matching key wins so specific scripts override general ones.
	var (
		best  string
		value V
		found bool
	)
	for k, v := range m {
		if strings.Contains(sel, k) && len(k) >= len(best) {
			best, value, found = k, v, true
		}
	}
	return value, found
}

func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.record(ctx, "Navigate", url); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if to, ok := d.redirects[url]; ok {
		d.location = to
	} else {
		d.location = url
	}
	return nil
}

func (d *FakeDriver) Location(ctx context.Context) (string, error) {
	if err := d.record(ctx, "Location", ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location, nil
}

func (d *FakeDriver) Click(ctx context.Context, sel string) error {
	return d.record(ctx, "Click", sel)
}

func (d *FakeDriver) Fill(ctx context.Context, sel, value string) error {
	return d.record(ctx, "Fill", sel, fmt.Sprintf("%q", value))
}

func (d *FakeDriver) Press(ctx context.Context, sel, chord string) error {
	return d.record(ctx, "Press", sel, chord)
}

func (d *FakeDriver) WaitVisible(ctx context.Context, sel string) error {
	return d.record(ctx, "WaitVisible", sel)
}

func (d *FakeDriver) WaitHidden(ctx context.Context, sel string) error {
	return d.record(ctx, "WaitHidden", sel)
}

func (d *FakeDriver) WaitAttached(ctx context.Context, sel string) error {
	return d.record(ctx, "WaitAttached", sel)
}

func (d *FakeDriver) Count(ctx context.Context, sel string) (int, error) {
	if err := d.record(ctx, "Count", sel); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := lookup(d.counts, sel)
	return n, nil
}

func (d *FakeDriver) Text(ctx context.Context, sel string) (string, error) {
	if err := d.record(ctx, "Text", sel); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	text, _ := lookup(d.texts, sel)
	return text, nil
}

func (d *FakeDriver) Disabled(ctx context.Context, sel string) (bool, error) {
	if err := d.record(ctx, "Disabled", sel); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, _ := lookup(d.disabled, sel)
	return v, nil
}

func (d *FakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.record(ctx, "Screenshot", ""); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.shot...), nil
}
