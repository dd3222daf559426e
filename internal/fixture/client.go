// Package fixture provisions and tears down checks and tags through the
// product's REST API.
//
// The remote account is shared and never reset, so every operation here is
// written to be safe to repeat: EnsureTag is get-or-create and
// DeleteChecksBy waits for every delete before returning.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/roach88/upcheck/internal/facts"
)

// DefaultMaxConcurrentDeletes bounds the delete fan-out.
const DefaultMaxConcurrentDeletes = 8

// ErrUnfilteredDelete is returned when DeleteChecksBy is called without a
// tag or search filter.
var ErrUnfilteredDelete = errors.New("refusing to delete checks without a tag or search filter")

// Observer receives one call per completed API request.
type Observer interface {
	ObserveRequest(method string, status int, elapsed time.Duration)
}

// Client is a product API client scoped to one account token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	facts      *facts.Generator
	maxDeletes int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a request observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithFacts sets the generator used for default colors and addresses.
func WithFacts(g *facts.Generator) Option {
	return func(c *Client) { c.facts = g }
}

// WithMaxConcurrentDeletes bounds how many deletes run at once.
func WithMaxConcurrentDeletes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxDeletes = n
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxDeletes: DefaultMaxConcurrentDeletes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.facts == nil {
		c.facts = facts.New(0)
	}
	return c
}

// EnsureTag returns the tag named name, creating it with color (or a random
// color when empty) if it does not exist. An existing tag is returned
// unchanged even when color differs.
//
// The lookup and the create are two requests; two callers racing on the
// same new name can both create it. Scenarios run sequentially, so the
// harness never does.
func (c *Client) EnsureTag(ctx context.Context, name, color string) (*Tag, error) {
	tags, err := c.searchTags(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if tags[i].Tag == name {
			return &tags[i], nil
		}
	}
	return c.CreateTag(ctx, name, color)
}

// ListTags returns the tags whose name contains search, following
// pagination.
func (c *Client) ListTags(ctx context.Context, search string) ([]Tag, error) {
	return c.searchTags(ctx, search)
}

func (c *Client) searchTags(ctx context.Context, search string) ([]Tag, error) {
	u := c.endpoint("/api/v1/check-tags/")
	q := u.Query()
	q.Set("search", search)
	u.RawQuery = q.Encode()

	return listAll[Tag](ctx, c, u.String())
}

// CreateTag creates a tag unconditionally.
func (c *Client) CreateTag(ctx context.Context, name, color string) (*Tag, error) {
	if color == "" {
		color = c.facts.Color()
	}
	body := map[string]any{"tag": name, "color_hex": color}

	var tag Tag
	if err := c.do(ctx, http.MethodPost, c.endpoint("/api/v1/check-tags/").String(), body, &tag); err != nil {
		return nil, err
	}
	c.logger.Info("tag created", "tag", name, "color", color)
	return &tag, nil
}

// baseline returns the payload every check creation starts from.
func (c *Client) baseline() map[string]any {
	return map[string]any{
		"contact_groups": []string{"Default"},
		"locations":      []string{"US East", "United Kingdom"},
		"msp_address":    c.facts.URL(),
		"msp_interval":   5,
	}
}

// CreateCheck creates a check of the given type slug. fields are merged
// over the baseline payload.
func (c *Client) CreateCheck(ctx context.Context, checkType string, fields map[string]any) (*Check, error) {
	body := c.baseline()
	for k, v := range fields {
		body[k] = v
	}

	var raw json.RawMessage
	u := c.endpoint(fmt.Sprintf("/api/v1/checks/add-%s/", checkType)).String()
	if err := c.do(ctx, http.MethodPost, u, body, &raw); err != nil {
		return nil, err
	}

	check, err := decodeCreated(raw)
	if err != nil {
		return nil, fmt.Errorf("decode created %s check: %w", checkType, err)
	}
	c.logger.Info("check created", "type", checkType, "name", check.Name, "url", check.URL)
	return check, nil
}

// decodeCreated accepts both a bare record and the {"results": {...}}
// envelope the API wraps creations in.
func decodeCreated(raw json.RawMessage) (*Check, error) {
	var env struct {
		Results *Check `json:"results"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Results != nil {
		return env.Results, nil
	}
	var check Check
	if err := json.Unmarshal(raw, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// ListChecks returns every check matching f, following pagination.
func (c *Client) ListChecks(ctx context.Context, f Filter) ([]Check, error) {
	u := c.endpoint("/api/v1/checks/")
	q := u.Query()
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	u.RawQuery = q.Encode()

	return listAll[Check](ctx, c, u.String())
}

// listAll GETs first and every page its next links lead to. A next link
// seen before is an error rather than a loop.
func listAll[T any](ctx context.Context, c *Client, first string) ([]T, error) {
	var all []T
	seen := make(map[string]struct{})
	for next := first; next != ""; {
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("list %s: pagination revisits %s", first, next)
		}
		seen[next] = struct{}{}

		var p page[T]
		if err := c.do(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		next = p.Next
	}
	return all, nil
}

// DeleteChecksBy deletes every check matching f and returns how many were
// deleted. Deletes are issued concurrently; the call returns only after all
// of them finish. Every failed delete is reported in the joined error, and
// the count still includes the deletes that succeeded.
func (c *Client) DeleteChecksBy(ctx context.Context, f Filter) (int, error) {
	if f.IsZero() {
		return 0, ErrUnfilteredDelete
	}

	checks, err := c.ListChecks(ctx, f)
	if err != nil {
		return 0, err
	}

	var deleted atomic.Int64
	p := pool.New().WithMaxGoroutines(c.maxDeletes).WithErrors().WithContext(ctx)
	for _, check := range checks {
		resource := check.URL
		p.Go(func(ctx context.Context) error {
			if err := c.Delete(ctx, resource); err != nil {
				return err
			}
			deleted.Add(1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return int(deleted.Load()), fmt.Errorf("delete checks (tag=%q search=%q): %w", f.Tag, f.Search, err)
	}

	c.logger.Info("checks deleted", "tag", f.Tag, "search", f.Search, "count", len(checks))
	return len(checks), nil
}

// Delete deletes a single resource by its absolute URL. Only 200 counts as
// success.
func (c *Client) Delete(ctx context.Context, resourceURL string) error {
	if resourceURL == "" {
		return errors.New("delete: empty resource url")
	}
	return c.do(ctx, http.MethodDelete, resourceURL, nil, nil)
}

func (c *Client) endpoint(path string) *url.URL {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		// baseURL is validated by config; a parse failure here is a programming error.
		panic(fmt.Sprintf("fixture: invalid endpoint %q: %v", c.baseURL+path, err))
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, rawURL, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, rawURL, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if c.observer != nil {
		c.observer.ObserveRequest(method, resp.StatusCode, time.Since(start))
	}
	c.logger.Debug("api request", "method", method, "url", rawURL, "status", resp.StatusCode, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, rawURL, err)
	}

	if !success(method, resp.StatusCode) {
		return &RequestError{Method: method, URL: rawURL, Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, rawURL, err)
	}
	return nil
}

func success(method string, status int) bool {
	if method == http.MethodDelete {
		return status == http.StatusOK
	}
	return status >= 200 && status < 300
}
