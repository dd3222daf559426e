package flow

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upcheck/internal/browser"
	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/testutil"
)

const base = "https://staging.example.com"

var tags = []string{"playwright", "checks_create", "ns-1"}

// indexOf returns the position of the first call with method whose text
// contains every fragment, or -1.
func indexOf(calls []string, method string, fragments ...string) int {
	for i, c := range calls {
		if !strings.HasPrefix(c, method+" ") {
			continue
		}
		ok := true
		for _, f := range fragments {
			if !strings.Contains(c, f) {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

func TestCreateCheck_HTTP(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	form, err := page.CreateCheck(context.Background(), catalog.HTTP, Values{
		Name:   "alpha  beta gamma",
		Target: "https://example.com/path",
		Tags:   tags,
	})
	require.NoError(t, err)

	assert.Equal(t, Persisted, form.State())
	assert.Equal(t, []State{FormOpened, FieldsPopulated, Submitted, Persisted}, form.History())
	assert.False(t, form.TypeLocked)

	calls := drv.Calls()
	assert.NotEqual(t, -1, indexOf(calls, "Fill", `"Name of check"`, `"alpha beta gamma"`))
	assert.NotEqual(t, -1, indexOf(calls, "Fill", `"URL*"`, `"https://example.com/path"`))
	assert.Equal(t, -1, indexOf(calls, "Click", "Website HTTP(S)"), "HTTP is the default type")
	for _, tag := range tags {
		assert.NotEqual(t, -1, indexOf(calls, "Click", "select2-results", `"`+tag+`"`))
	}
	assert.NotEqual(t, -1, indexOf(calls, "Press", `"Tags"`, "Escape"))
	assert.Len(t, drv.CallsTo("WaitHidden"), 1)
}

func TestCreateCheck_SelectsContractType(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	_, err := page.CreateCheck(context.Background(), catalog.ICMP, Values{Name: "n", Target: "1.1.1.1"})
	require.NoError(t, err)

	calls := drv.Calls()
	box := indexOf(calls, "Click", "Website HTTP(S)")
	option := indexOf(calls, "Click", "select2-results", `"Ping (ICMP)"`)
	require.NotEqual(t, -1, box)
	require.NotEqual(t, -1, option)
	assert.Less(t, box, option)
	assert.NotEqual(t, -1, indexOf(calls, "Fill", `"Domain or IP*"`, `"1.1.1.1"`))
	assert.Empty(t, drv.CallsTo("Press"), "no tags given, no drop-down to close")
}

func TestCreateCheck_UDPFillsEveryField(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	_, err := page.CreateCheck(context.Background(), catalog.UDP, Values{
		Name: "n", Target: "example.com", Port: "8125", Send: "Alice", Expect: "Bob",
	})
	require.NoError(t, err)

	calls := drv.Calls()
	order := []int{
		indexOf(calls, "Fill", `"Domain or IP*"`, `"example.com"`),
		indexOf(calls, "Fill", `"Port*"`, `"8125"`),
		indexOf(calls, "Fill", `"String to send*"`, `"Alice"`),
		indexOf(calls, "Fill", `"String to expect*"`, `"Bob"`),
	}
	for i, idx := range order {
		require.NotEqual(t, -1, idx, "field %d", i)
		if i > 0 {
			assert.Less(t, order[i-1], idx)
		}
	}
}

func TestCreateCheck_WhoisWaitsForLookupBeforeSave(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	_, err := page.CreateCheck(context.Background(), catalog.Whois, Values{
		Name: "n", Target: "google.com", Threshold: "30",
	})
	require.NoError(t, err)

	calls := drv.Calls()
	domain := indexOf(calls, "Fill", `"Domain*"`, `"google.com"`)
	enter := indexOf(calls, "Press", `"Domain*"`, "Enter")
	threshold := indexOf(calls, "Fill", `"Before expiry*"`, `"30"`)
	expires := indexOf(calls, "WaitAttached", "msp_expect_string", `"expires"`)
	nameservers := indexOf(calls, "WaitAttached", "msp_expect_string", `"nameservers"`)
	registrar := indexOf(calls, "WaitAttached", "msp_expect_string", `"registrar"`)
	refresh := indexOf(calls, "Click", `"Refresh"`)
	save := indexOf(calls, "Click", `"Save"`)

	seq := []int{domain, enter, threshold, expires, nameservers, registrar, refresh, save}
	for i := range seq {
		require.NotEqual(t, -1, seq[i], "step %d missing", i)
		if i > 0 {
			assert.Less(t, seq[i-1], seq[i], "step %d out of order", i)
		}
	}
}

func TestCreateCheck_WhoisLookupNeverPopulates(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.Fail("WaitAttached", `"registrar"`, context.DeadlineExceeded)
	page := NewChecks(drv, base)

	form, err := page.CreateCheck(context.Background(), catalog.Whois, Values{Name: "n", Target: "google.com", Threshold: "30"})
	require.Error(t, err)

	var ue *UIAssertionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "lookup", ue.Step)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, FormOpened, form.State())
	assert.Equal(t, -1, indexOf(drv.Calls(), "Click", `"Save"`), "save is never attempted")
}

func TestCreateCheck_CodePanelSavesTwice(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	form, err := page.CreateCheck(context.Background(), catalog.Heartbeat, Values{Name: "beat"})
	require.NoError(t, err)
	assert.Equal(t, Persisted, form.State())

	calls := drv.Calls()
	first := indexOf(calls, "Click", `"Save"`)
	panel := indexOf(calls, "WaitVisible", `//h5[@id="custom-check-code"]`)
	require.NotEqual(t, -1, panel)
	assert.Less(t, first, panel)

	var saves int
	for _, c := range drv.CallsTo("Click") {
		if strings.Contains(c, `"Save"`) {
			saves++
		}
	}
	assert.Equal(t, 2, saves)
	assert.Empty(t, drv.CallsTo("Fill")[1:], "only the name is filled")
}

func TestCreateCheck_APIAddsStep(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	_, err := page.CreateCheck(context.Background(), catalog.API, Values{Name: "n", Target: "example.org"})
	require.NoError(t, err)

	calls := drv.Calls()
	step := indexOf(calls, "Click", "Add Step")
	get := indexOf(calls, "Click", `"GET"`, `"URL"`)
	url := indexOf(calls, "Fill", `"URL*"`, `"https://example.org/api/v1/endpoint"`)
	require.NotEqual(t, -1, step)
	assert.Less(t, step, get)
	assert.Less(t, get, url)
}

func TestCreateCheck_Transaction(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	_, err := page.CreateCheck(context.Background(), catalog.Transaction, Values{Name: "n", Target: "example.net"})
	require.NoError(t, err)
	assert.NotEqual(t, -1, indexOf(drv.Calls(), "Fill", "transaction-editor", `"example.net"`))
}

func TestCreateCheck_UnknownTypeFailsBeforeTouchingThePage(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	_, err := page.CreateCheck(context.Background(), catalog.Type("ftp"), Values{Name: "n"})
	assert.ErrorIs(t, err, catalog.ErrUnknownType)
	assert.Empty(t, drv.Calls())
}

func TestCreateCheck_ValidationRejected(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.Fail("WaitHidden", `"Save"`, context.DeadlineExceeded)
	drv.SetCount("has-error", 1)
	drv.SetText("has-error", "This field is required.")
	page := NewChecks(drv, base)

	form, err := page.CreateCheck(context.Background(), catalog.DNS, Values{Name: "", Target: ""})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, ValidationRejected, form.State())
	assert.True(t, form.State().Terminal())

	var ue *UIAssertionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "This field is required.", ue.Actual)
}

func TestCreateCheck_SaveTimeoutWritesScreenshot(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.Fail("WaitHidden", `"Save"`, context.DeadlineExceeded)
	dir := t.TempDir()
	page := NewChecks(drv, base, WithArtifactsDir(dir))

	form, err := page.CreateCheck(context.Background(), catalog.SSH, Values{Name: "n", Target: "h"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, Submitted, form.State())

	var ue *UIAssertionError
	require.ErrorAs(t, err, &ue)
	require.NotEmpty(t, ue.Screenshot)
	assert.Contains(t, ue.Screenshot, "01-save.png")
	data, err := os.ReadFile(ue.Screenshot)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestEditCheck_AssertsTypeLocked(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.SetText("select2-selection", "SSL Certificate")
	drv.SetDisabled("select2-selection", true)
	page := NewChecks(drv, base)

	form, err := page.EditCheck(context.Background(), catalog.SSLCert, "old name", Values{
		Name: "new name", Target: "example.com", Threshold: "14", Tags: tags,
	})
	require.NoError(t, err)
	assert.True(t, form.TypeLocked)
	assert.Equal(t, ModeEdit, form.Mode)
	assert.Equal(t, Persisted, form.State())

	calls := drv.Calls()
	search := indexOf(calls, "Fill", `@placeholder="Search"`, `"old name"`)
	edit := indexOf(calls, "Click", `"old name"`, "Edit Check")
	locked := indexOf(calls, "Disabled", `@title="SSL Certificate"`)
	require.NotEqual(t, -1, search)
	assert.Less(t, search, edit)
	assert.Less(t, edit, locked)
	assert.Equal(t, -1, indexOf(calls, "Click", "Website HTTP(S)"), "type is never re-selected")
}

func TestEditCheck_EnabledTypeSelectorFails(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.SetText("select2-selection", "DNS")
	page := NewChecks(drv, base)

	_, err := page.EditCheck(context.Background(), catalog.DNS, "a", Values{Name: "b", Target: "c"})
	var ue *UIAssertionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "type locked", ue.Step)
	assert.Equal(t, "enabled", ue.Actual)
}

func TestEditCheck_WrongTypeShown(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.SetText("select2-selection", "Domain Blacklist")
	drv.SetDisabled("select2-selection", true)
	page := NewChecks(drv, base)

	_, err := page.EditCheck(context.Background(), catalog.Group, "a", Values{Name: "b"})
	var ue *UIAssertionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Domain Blacklist", ue.Actual)
}

func TestEditCheck_CodePanelSavesOnce(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.SetText("select2-selection", "Real User Monitoring")
	drv.SetDisabled("select2-selection", true)
	page := NewChecks(drv, base)

	form, err := page.EditCheck(context.Background(), catalog.RUM, "a", Values{Name: "b", Target: "rum.example.com"})
	require.NoError(t, err)
	assert.Equal(t, Persisted, form.State())

	var saves int
	for _, c := range drv.CallsTo("Click") {
		if strings.Contains(c, `"Save"`) {
			saves++
		}
	}
	assert.Equal(t, 1, saves)
	assert.NotEqual(t, -1, indexOf(drv.Calls(), "WaitVisible", `//h5[@id="rum-code"]`))
}

func TestEditCheck_EmptyTargetKeepsScript(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.SetText("select2-selection", "Transaction")
	drv.SetDisabled("select2-selection", true)
	page := NewChecks(drv, base)

	_, err := page.EditCheck(context.Background(), catalog.Transaction, "a", Values{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, -1, indexOf(drv.Calls(), "Fill", "transaction-editor"))
}

func TestExpectRow(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	row, err := catalog.MustLookup(catalog.Group).ExpectedRow("grp one", "")
	require.NoError(t, err)
	require.NoError(t, page.ExpectRow(context.Background(), row))

	calls := drv.CallsTo("WaitVisible")
	require.Len(t, calls, 3)
	assert.Contains(t, calls[1], `/td[normalize-space(.)="group"]`)
	assert.Contains(t, calls[2], `/following-sibling::a/span[normalize-space(.)="group"]`)
}

func TestExpectRow_ReportsRenderedRow(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.Fail("WaitVisible", `/td[normalize-space(.)="HTTP(S)"]`, context.DeadlineExceeded)
	drv.SetCount("//tr[td/a", 1)
	drv.SetText("//tr[td/a", "  alpha beta gamma   DNS  ")
	page := NewChecks(drv, base)

	err := page.ExpectRow(context.Background(), catalog.Row{Name: "alpha beta gamma", TypeLabel: "HTTP(S)"})
	var ue *UIAssertionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "expect type", ue.Step)
	assert.Equal(t, "alpha beta gamma DNS", ue.Actual)
	assert.Contains(t, err.Error(), `expected type "HTTP(S)"`)
}

func TestOpen_WaitsForListAndTags(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base+"/")

	require.NoError(t, page.Open(context.Background(), "playwright", "checks_edit"))

	calls := drv.Calls()
	assert.Equal(t, "Navigate "+base+"/devices/services", calls[0])
	assert.NotEqual(t, -1, indexOf(calls, "WaitVisible", "buttonBar", "All Tags"))
	assert.NotEqual(t, -1, indexOf(calls, "WaitVisible", "buttonBar", "All Checks"))
	assert.NotEqual(t, -1, indexOf(calls, "WaitVisible", "white-block"))
	assert.NotEqual(t, -1, indexOf(calls, "WaitVisible", `//span[contains(., "checks_edit")]`))
}

func TestClearSearch(t *testing.T) {
	drv := testutil.NewFakeDriver()
	page := NewChecks(drv, base)

	require.NoError(t, page.ClearSearch(context.Background()))
	presses := drv.CallsTo("Press")
	require.Len(t, presses, 2)
	assert.True(t, strings.HasSuffix(presses[0], "Control+A"))
	assert.True(t, strings.HasSuffix(presses[1], "Delete"))
}

func TestLogin_SkipsWhenSessionIsValid(t *testing.T) {
	drv := testutil.NewFakeDriver()

	err := LoginAuthenticator{Username: "u", Password: "p"}.Authenticate(context.Background(), browser.Session{Driver: drv, BaseURL: base})
	require.NoError(t, err)
	assert.Equal(t, []string{"Navigate " + base + "/launchpad", "Location "}, drv.Calls())
}

func TestLogin_SubmitsCredentials(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.Redirect(base+"/launchpad", base+"/accounts/login?next=/launchpad")

	err := LoginAuthenticator{Username: "qa@example.com", Password: "hunter2"}.Authenticate(context.Background(), browser.Session{Driver: drv, BaseURL: base})
	require.NoError(t, err)

	calls := drv.Calls()
	assert.NotEqual(t, -1, indexOf(calls, "Navigate", "/accounts/login"))
	assert.NotEqual(t, -1, indexOf(calls, "Fill", `@name="username"`, `"qa@example.com"`))
	assert.NotEqual(t, -1, indexOf(calls, "Fill", `@name="password"`, `"hunter2"`))
	assert.NotEqual(t, -1, indexOf(calls, "Click", "submit"))
}

func TestLogin_RejectedCredentialsDoNotLeakPassword(t *testing.T) {
	drv := testutil.NewFakeDriver()
	drv.Redirect(base+"/launchpad", base+"/accounts/login?next=/launchpad")
	drv.Fail("WaitHidden", `@name="password"`, errors.New("still on login page"))

	err := LoginAuthenticator{Username: "u", Password: "hunter2"}.Authenticate(context.Background(), browser.Session{Driver: drv, BaseURL: base})
	require.Error(t, err)
	assert.True(t, IsUIAssertionError(err))
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestForm_RejectsIllegalTransitions(t *testing.T) {
	f := newForm(catalog.HTTP, ModeCreate)

	err := f.advance(Submitted)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, FormOpened, te.From)
	assert.Equal(t, Submitted, te.To)

	require.NoError(t, f.advance(FieldsPopulated))
	require.NoError(t, f.advance(Submitted))
	require.NoError(t, f.advance(Persisted))
	assert.Error(t, f.advance(FieldsPopulated), "terminal state")
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, literal("plain"))
	assert.Equal(t, `'say "hi"'`, literal(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"')`, literal(`it's "quoted"`))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "café au lait", normalize("  café   au\tlait "))
}

func TestPanelXPath(t *testing.T) {
	assert.Equal(t, `//h5[@id="rum-code"]`, panelXPath("h5#rum-code"))
}
