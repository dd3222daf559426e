// Package isolation gives each scenario its own slice of the shared product
// account.
//
// Acquire ensures the run's tags, purges checks left under the suite tag by
// earlier runs and mints a fresh namespace tag. Everything the scenario
// creates carries that namespace, and Release deletes it again. Callers
// defer Release immediately after a successful Acquire.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/fixture"
)

// Fixed tag colors.
const (
	BaseColor        = "#444444"
	PlaceholderTag   = "placeholder"
	PlaceholderColor = "#888888"
)

// Provisioner is the subset of fixture.Client a scope needs.
type Provisioner interface {
	EnsureTag(ctx context.Context, name, color string) (*fixture.Tag, error)
	CreateCheck(ctx context.Context, checkType string, fields map[string]any) (*fixture.Check, error)
	DeleteChecksBy(ctx context.Context, f fixture.Filter) (int, error)
}

// Options configures Acquire.
type Options struct {
	// BaseTag is shared by every scenario of every suite.
	BaseTag string

	// Suite names the suite tag. Stale checks under it are purged.
	Suite string

	// Placeholder pre-creates an HTTP check carrying the placeholder tag so
	// tag filters in the list view are never empty.
	Placeholder bool

	// PlaceholderName names the placeholder check.
	PlaceholderName string

	Namespaces Generator
	Logger     *slog.Logger

	// OnDeleted is called with the number of checks each purge removed.
	OnDeleted func(n int)
}

// ErrReleased is returned by Scope methods called after Release.
var ErrReleased = errors.New("isolation scope already released")

// Scope is one acquired isolation context.
type Scope struct {
	BaseTag   string
	SuiteTag  string
	Namespace string

	// Stale is how many leftover checks Acquire purged.
	Stale int

	// Placeholder is the pre-created check, if requested.
	Placeholder *fixture.Check

	client    Provisioner
	logger    *slog.Logger
	onDeleted func(int)

	mu       sync.Mutex
	created  []*fixture.Check
	released bool
}

// Acquire provisions a scope. The steps are idempotent, so a retried
// scenario can call Acquire again from the start.
func Acquire(ctx context.Context, client Provisioner, opts Options) (*Scope, error) {
	if opts.BaseTag == "" {
		return nil, errors.New("isolation: base tag is required")
	}
	if opts.Suite == "" {
		return nil, errors.New("isolation: suite is required")
	}
	if opts.Namespaces == nil {
		opts.Namespaces = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Scope{
		BaseTag:   opts.BaseTag,
		SuiteTag:  opts.Suite,
		Namespace: opts.Namespaces.Generate(),
		client:    client,
		onDeleted: opts.OnDeleted,
	}
	s.logger = opts.Logger.With("namespace", s.Namespace)

	if _, err := client.EnsureTag(ctx, s.BaseTag, BaseColor); err != nil {
		return nil, fmt.Errorf("ensure base tag %q: %w", s.BaseTag, err)
	}
	if _, err := client.EnsureTag(ctx, s.SuiteTag, ""); err != nil {
		return nil, fmt.Errorf("ensure suite tag %q: %w", s.SuiteTag, err)
	}
	if opts.Placeholder {
		if _, err := client.EnsureTag(ctx, PlaceholderTag, PlaceholderColor); err != nil {
			return nil, fmt.Errorf("ensure placeholder tag: %w", err)
		}
	}

	n, err := client.DeleteChecksBy(ctx, fixture.Filter{Tag: s.SuiteTag})
	s.deleted(n)
	if err != nil {
		return nil, fmt.Errorf("purge suite tag %q: %w", s.SuiteTag, err)
	}
	s.Stale = n

	if _, err := client.EnsureTag(ctx, s.Namespace, ""); err != nil {
		return nil, fmt.Errorf("ensure namespace tag: %w", err)
	}

	if opts.Placeholder {
		name := opts.PlaceholderName
		if name == "" {
			name = PlaceholderTag + " " + s.Namespace
		}
		check, err := client.CreateCheck(ctx, string(catalog.HTTP), map[string]any{
			"name": name,
			"tags": append(s.Tags(), PlaceholderTag),
		})
		if err != nil {
			return nil, fmt.Errorf("create placeholder check: %w", err)
		}
		s.Placeholder = check
		s.created = append(s.created, check)
	}

	s.logger.Info("isolation scope acquired", "suite", s.SuiteTag, "stale", s.Stale)
	return s, nil
}

// Tags returns the tags every check created in the scope must carry:
// base, suite and namespace, in that order.
func (s *Scope) Tags() []string {
	return []string{s.BaseTag, s.SuiteTag, s.Namespace}
}

// CreateFixture creates a check of type t through the API, tagged with the
// scope's tags. target and extra feed the contract's payload.
func (s *Scope) CreateFixture(ctx context.Context, t catalog.Type, name, target string, extra map[string]any) (*fixture.Check, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	contract, err := catalog.Lookup(t)
	if err != nil {
		return nil, err
	}
	fields := contract.Payload(target, extra)
	fields["name"] = name
	fields["tags"] = s.Tags()

	check, err := s.client.CreateCheck(ctx, string(t), fields)
	if err != nil {
		return nil, fmt.Errorf("create %s fixture %q: %w", t, name, err)
	}

	s.mu.Lock()
	s.created = append(s.created, check)
	s.mu.Unlock()
	return check, nil
}

// Created returns the fixtures created through the scope.
func (s *Scope) Created() []*fixture.Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fixture.Check(nil), s.created...)
}

// Release deletes every check carrying the namespace tag. It is safe to
// call more than once; only the first call does any work. Pass a context
// that is not bound to the scenario deadline, or an expired scenario skips
// its own teardown.
func (s *Scope) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	n, err := s.client.DeleteChecksBy(ctx, fixture.Filter{Tag: s.Namespace})
	s.deleted(n)
	if err != nil {
		s.logger.Error("isolation scope release failed", "error", err)
		return fmt.Errorf("release namespace %q: %w", s.Namespace, err)
	}
	s.logger.Info("isolation scope released", "deleted", n)
	return nil
}

func (s *Scope) deleted(n int) {
	if s.onDeleted != nil && n > 0 {
		s.onDeleted(n)
	}
}
