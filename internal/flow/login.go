package flow

import (
	"context"
	"strings"

	"github.com/roach88/upcheck/internal/browser"
)

const loginRedirect = "/accounts/login?next=/launchpad"

// LoginAuthenticator signs a browser session in with a username and
// password. A session that already has a valid login is left alone.
type LoginAuthenticator struct {
	Username string
	Password string
}

// Authenticate opens the launchpad and, if it redirects to the login page,
// submits the credentials.
func (a LoginAuthenticator) Authenticate(ctx context.Context, s browser.Session) error {
	base := strings.TrimRight(s.BaseURL, "/")
	c := NewChecks(s.Driver, base)

	if err := s.Driver.Navigate(ctx, base+"/launchpad"); err != nil {
		return c.fail(ctx, "login", "/launchpad", "launchpad to load", err)
	}
	loc, err := s.Driver.Location(ctx)
	if err != nil {
		return c.fail(ctx, "login", "/launchpad", "current location", err)
	}
	if !strings.HasSuffix(loc, loginRedirect) {
		return nil
	}

	if err := s.Driver.Navigate(ctx, base+"/accounts/login"); err != nil {
		return c.fail(ctx, "login", "/accounts/login", "login page to load", err)
	}
	if err := c.fill(ctx, "login", selUsername, a.Username); err != nil {
		return err
	}
	if err := s.Driver.Fill(ctx, selPassword, a.Password); err != nil {
		return c.fail(ctx, "login", selPassword, "password field", err)
	}
	if err := c.click(ctx, "login", selSubmit); err != nil {
		return err
	}
	if err := s.Driver.WaitHidden(ctx, selPassword); err != nil {
		return c.fail(ctx, "login", selPassword, "login form to be accepted", err)
	}
	return nil
}
