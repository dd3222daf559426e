// Package flow drives the product's checks list and check form through a
// browser.Driver. Every field label, type label and save interaction comes
// from the catalog contract of the type being driven.
package flow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/upcheck/internal/browser"
	"github.com/roach88/upcheck/internal/catalog"
)

const checksPath = "/devices/services"

// screenshotTimeout bounds the capture taken after a failure. It runs
// detached from the failed step's context, which has usually expired.
const screenshotTimeout = 5 * time.Second

// Values are the form inputs for one check. Fields the type does not use
// are ignored.
type Values struct {
	Name      string
	Target    string
	Port      string
	Send      string
	Expect    string
	Threshold string
	Tags      []string
}

func (v Values) forKind(k catalog.FieldKind) string {
	switch k {
	case catalog.FieldTarget:
		return v.Target
	case catalog.FieldPort:
		return v.Port
	case catalog.FieldSend:
		return v.Send
	case catalog.FieldExpect:
		return v.Expect
	case catalog.FieldThreshold:
		return v.Threshold
	}
	return ""
}

// Checks is the checks list page and the check form it opens.
type Checks struct {
	drv       browser.Driver
	baseURL   string
	logger    *slog.Logger
	artifacts string
	shots     int
}

// Option configures Checks.
type Option func(*Checks)

// WithLogger sets the step logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checks) { c.logger = l }
}

// WithArtifactsDir makes failures write a screenshot into dir.
func WithArtifactsDir(dir string) Option {
	return func(c *Checks) { c.artifacts = dir }
}

// NewChecks returns the checks page of the application at baseURL.
func NewChecks(drv browser.Driver, baseURL string, opts ...Option) *Checks {
	c := &Checks{
		drv:     drv,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads the checks list and waits until it and the given tag chips
// are shown.
func (c *Checks) Open(ctx context.Context, tags ...string) error {
	if err := c.drv.Navigate(ctx, c.baseURL+checksPath); err != nil {
		return c.fail(ctx, "open checks", checksPath, "page to load", err)
	}
	for _, sel := range []string{selButtonBar, selButtonBarText("All Tags"), selButtonBarText("All Checks"), selWhiteBlock} {
		if err := c.drv.WaitVisible(ctx, sel); err != nil {
			return c.fail(ctx, "open checks", sel, "visible", err)
		}
	}
	for _, tag := range tags {
		if err := c.drv.WaitVisible(ctx, selTagChip(tag)); err != nil {
			return c.fail(ctx, "open checks", selTagChip(tag), "tag "+tag+" visible", err)
		}
	}
	return nil
}

// CreateCheck fills and submits the Add Check form for type t. The
// returned form reports how far the workflow got, also on error.
func (c *Checks) CreateCheck(ctx context.Context, t catalog.Type, v Values) (*Form, error) {
	contract, err := catalog.Lookup(t)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("create check", "type", t, "name", v.Name)

	if err := c.click(ctx, "add new", selAddNew); err != nil {
		return nil, err
	}
	if err := c.waitVisible(ctx, "open form", selHeading("Add Check")); err != nil {
		return nil, err
	}
	form := newForm(t, ModeCreate)

	if err := c.fill(ctx, "name", labelled("Name of check"), normalize(v.Name)); err != nil {
		return form, err
	}
	if t != catalog.HTTP {
		if err := c.selectType(ctx, contract.SelectorLabel); err != nil {
			return form, err
		}
	}
	if err := c.fillTags(ctx, v.Tags); err != nil {
		return form, err
	}
	if err := c.populate(ctx, contract, v, ModeCreate); err != nil {
		return form, err
	}
	if err := form.advance(FieldsPopulated); err != nil {
		return form, err
	}
	return form, c.submit(ctx, form, contract)
}

// EditCheck opens the check named current, asserts its type is locked to
// t, then fills and submits the form. In edit mode an empty Target leaves
// the check's target untouched.
func (c *Checks) EditCheck(ctx context.Context, t catalog.Type, current string, v Values) (*Form, error) {
	contract, err := catalog.Lookup(t)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("edit check", "type", t, "from", current, "to", v.Name)

	if err := c.Search(ctx, current); err != nil {
		return nil, err
	}
	if err := c.click(ctx, "edit", selEdit(normalize(current))); err != nil {
		return nil, err
	}
	if err := c.waitVisible(ctx, "open form", selHeading("Edit Check")); err != nil {
		return nil, err
	}
	form := newForm(t, ModeEdit)

	if err := c.fill(ctx, "name", labelled("Name of check"), normalize(v.Name)); err != nil {
		return form, err
	}
	if err := c.expectTypeLocked(ctx, contract.SelectorLabel); err != nil {
		return form, err
	}
	if err := c.fillTags(ctx, v.Tags); err != nil {
		return form, err
	}
	if err := c.populate(ctx, contract, v, ModeEdit); err != nil {
		return form, err
	}
	if err := form.advance(FieldsPopulated); err != nil {
		return form, err
	}
	return form, c.submit(ctx, form, contract)
}

// Search types name into the list's search box.
func (c *Checks) Search(ctx context.Context, name string) error {
	if err := c.click(ctx, "search", selSearch); err != nil {
		return err
	}
	return c.fill(ctx, "search", selSearch, normalize(name))
}

// ClearSearch empties the list's search box.
func (c *Checks) ClearSearch(ctx context.Context) error {
	if err := c.click(ctx, "clear search", selSearch); err != nil {
		return err
	}
	for _, chord := range []string{"Control+A", "Delete"} {
		if err := c.drv.Press(ctx, selSearch, chord); err != nil {
			return c.fail(ctx, "clear search", selSearch, "search box to accept "+chord, err)
		}
	}
	return nil
}

// ExpectRow asserts the list shows row: the name link, the type label in
// the row and, when set, the address next to the name.
func (c *Checks) ExpectRow(ctx context.Context, row catalog.Row) error {
	name := normalize(row.Name)
	checks := []struct {
		step     string
		sel      string
		expected string
	}{
		{"expect name", selRowName(name), fmt.Sprintf("check %q listed", name)},
		{"expect type", selRowType(name, normalize(row.TypeLabel)), fmt.Sprintf("type %q", row.TypeLabel)},
	}
	if row.Address != "" {
		checks = append(checks, struct {
			step     string
			sel      string
			expected string
		}{"expect address", selRowAddress(name, normalize(row.Address)), fmt.Sprintf("address %q", row.Address)})
	}

	for _, chk := range checks {
		if err := c.drv.WaitVisible(ctx, chk.sel); err != nil {
			return c.failWithRow(ctx, chk.step, chk.sel, chk.expected, name, err)
		}
	}
	return nil
}

func (c *Checks) selectType(ctx context.Context, label string) error {
	if err := c.click(ctx, "select type", selTypeBox); err != nil {
		return err
	}
	return c.click(ctx, "select type", selOption(label))
}

func (c *Checks) fillTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if err := c.click(ctx, "tags", selTagsInput); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := c.click(ctx, "tags", selOption(tag)); err != nil {
			return err
		}
	}
	if err := c.drv.Press(ctx, selTagsInput, "Escape"); err != nil {
		return c.fail(ctx, "tags", selTagsInput, "tag drop-down to close", err)
	}
	return nil
}

func (c *Checks) expectTypeLocked(ctx context.Context, label string) error {
	sel := selLockedType(label)
	text, err := c.drv.Text(ctx, sel)
	if err != nil {
		return c.fail(ctx, "type locked", sel, fmt.Sprintf("type selector showing %q", label), err)
	}
	if normalize(text) != normalize(label) {
		return c.failActual(ctx, "type locked", sel, fmt.Sprintf("type selector showing %q", label), text, nil)
	}
	disabled, err := c.drv.Disabled(ctx, sel)
	if err != nil {
		return c.fail(ctx, "type locked", sel, "type selector disabled", err)
	}
	if !disabled {
		return c.failActual(ctx, "type locked", sel, "type selector disabled", "enabled", nil)
	}
	return nil
}

// populate fills the type-specific part of the form in contract order.
func (c *Checks) populate(ctx context.Context, contract catalog.Contract, v Values, mode Mode) error {
	retarget := v.Target != "" || mode == ModeCreate

	switch contract.Target {
	case catalog.TargetScript:
		if retarget {
			if err := c.fill(ctx, "transaction", selTxnInput, v.Target); err != nil {
				return err
			}
		}
	case catalog.TargetStepURL:
		if retarget {
			if err := c.click(ctx, "add step", selAddStep); err != nil {
				return err
			}
			if err := c.click(ctx, "add step", selGetURLStep); err != nil {
				return err
			}
		}
	}

	for _, field := range contract.Fields {
		if field.Kind == catalog.FieldTarget && !retarget {
			continue
		}
		value := v.forKind(field.Kind)
		if field.Kind == catalog.FieldTarget {
			value = contract.FormValue(value)
		}
		sel := labelled(field.Label)
		if err := c.fill(ctx, field.Label, sel, value); err != nil {
			return err
		}
		if field.Kind == catalog.FieldTarget && len(contract.Lookup) > 0 {
			if err := c.drv.Press(ctx, sel, "Enter"); err != nil {
				return c.fail(ctx, field.Label, sel, "lookup to start", err)
			}
		}
	}

	if len(contract.Lookup) == 0 {
		return nil
	}
	for _, fact := range contract.Lookup {
		if err := c.drv.WaitAttached(ctx, selLookupFact(fact)); err != nil {
			return c.fail(ctx, "lookup", selLookupFact(fact), fact+" populated", err)
		}
	}
	return c.click(ctx, "refresh", selRefresh)
}

// submit saves the form. Code-panel types reveal their snippet panel on the
// first Save; a created check then needs a second Save to close the form.
func (c *Checks) submit(ctx context.Context, form *Form, contract catalog.Contract) error {
	if err := form.advance(Submitted); err != nil {
		return err
	}

	if contract.Save == catalog.SaveCodePanel {
		if err := c.click(ctx, "save", selSave); err != nil {
			return err
		}
		panel := panelXPath(contract.Panel)
		if err := c.drv.WaitVisible(ctx, panel); err != nil {
			return c.rejectedOr(ctx, form, panel, "code panel", err)
		}
		if form.Mode == ModeEdit {
			return form.advance(Persisted)
		}
	}

	if err := c.click(ctx, "save", selSave); err != nil {
		return err
	}
	if err := c.drv.WaitHidden(ctx, selSave); err != nil {
		return c.rejectedOr(ctx, form, selSave, "form to close", err)
	}
	if err := c.waitVisible(ctx, "save", selWhiteBlock); err != nil {
		return err
	}
	return form.advance(Persisted)
}

// rejectedOr classifies a failed save: validation errors on the form move
// it to ValidationRejected, anything else is a plain assertion failure.
func (c *Checks) rejectedOr(ctx context.Context, form *Form, sel, expected string, cause error) error {
	n, err := c.drv.Count(ctx, selFormErrors)
	if err == nil && n > 0 {
		if err := form.advance(ValidationRejected); err != nil {
			return err
		}
		text, _ := c.drv.Text(ctx, selFormErrors)
		return c.failActual(ctx, "save", selFormErrors, expected, normalize(text), ErrValidationRejected)
	}
	return c.fail(ctx, "save", sel, expected, cause)
}

func (c *Checks) click(ctx context.Context, step, sel string) error {
	if err := c.drv.Click(ctx, sel); err != nil {
		return c.fail(ctx, step, sel, "clickable", err)
	}
	return nil
}

func (c *Checks) fill(ctx context.Context, step, sel, value string) error {
	if err := c.drv.Fill(ctx, sel, value); err != nil {
		return c.fail(ctx, step, sel, fmt.Sprintf("field accepting %q", value), err)
	}
	return nil
}

func (c *Checks) waitVisible(ctx context.Context, step, sel string) error {
	if err := c.drv.WaitVisible(ctx, sel); err != nil {
		return c.fail(ctx, step, sel, "visible", err)
	}
	return nil
}

func (c *Checks) fail(ctx context.Context, step, sel, expected string, cause error) error {
	return c.failActual(ctx, step, sel, expected, "", cause)
}

func (c *Checks) failWithRow(ctx context.Context, step, sel, expected, name string, cause error) error {
	actual := ""
	if n, err := c.drv.Count(ctx, selRow(name)); err == nil && n > 0 {
		if text, err := c.drv.Text(ctx, selRow(name)); err == nil {
			actual = normalize(text)
		}
	}
	return c.failActual(ctx, step, sel, expected, actual, cause)
}

func (c *Checks) failActual(ctx context.Context, step, sel, expected, actual string, cause error) error {
	uerr := &UIAssertionError{Step: step, Selector: sel, Expected: expected, Actual: actual, Err: cause}
	if path, err := c.screenshot(ctx, step); err != nil {
		c.logger.Warn("screenshot failed", "step", step, "error", err)
	} else {
		uerr.Screenshot = path
	}
	c.logger.Debug("ui assertion failed", "step", step, "selector", sel, "error", cause)
	return uerr
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

func (c *Checks) screenshot(ctx context.Context, step string) (string, error) {
	if c.artifacts == "" {
		return "", nil
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	png, err := c.drv.Screenshot(sctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.artifacts, 0o755); err != nil {
		return "", err
	}
	c.shots++
	name := fmt.Sprintf("%02d-%s.png", c.shots, strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(step), "-"), "-"))
	path := filepath.Join(c.artifacts, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
