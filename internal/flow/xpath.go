package flow

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize folds text the way the list renders it: NFC, single spaces,
// no surrounding whitespace. It matches XPath's normalize-space on the
// page side.
func normalize(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// literal quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a value holding both quote kinds is built with concat().
func literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	args := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			args = append(args, `'"'`)
		}
		if p != "" {
			args = append(args, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

func hasClass(class string) string {
	return fmt.Sprintf(`contains(concat(" ", normalize-space(@class), " "), " %s ")`, class)
}

// labelled selects the form control whose <label> text is label.
func labelled(label string) string {
	l := literal(label)
	return fmt.Sprintf(`//*[(self::input or self::textarea or self::select) and @id=//label[normalize-space(.)=%s]/@for] | //label[normalize-space(.)=%s]//input`, l, l)
}

// panelXPath converts a catalog panel selector of the form "h5#id".
func panelXPath(css string) string {
	tag, id, ok := strings.Cut(css, "#")
	if !ok {
		return css
	}
	return fmt.Sprintf(`//%s[@id=%s]`, tag, literal(id))
}

var (
	selButtonBar  = `//*[@id="buttonBar"]`
	selWhiteBlock = `//*[` + hasClass("white-block") + `]`
	selAddNew     = `//*[contains(text(), "Add New")]`
	selWizard     = `//div[@data-wizard="services-form"]`
	selSave       = `//button[normalize-space(.)="Save"]`
	selRefresh    = `//button[normalize-space(.)="Refresh"]`
	selSearch     = `//div[@class="form-inline"]//*[@placeholder="Search"]`
	selTypeBox    = `//span[` + hasClass("select2") + `]//span[@role="textbox"][contains(., "Website HTTP(S)")]`
	selTagsInput  = `//label[normalize-space(.)="Tags"]/following-sibling::span[` + hasClass("select2") + `]//input`
	selTxnInput   = `//div[@id="transaction-editor"]//input`
	selAddStep    = `//button[contains(., "Add Step")]`
	selGetURLStep = `//a[contains(., "GET")][span[contains(., "URL")]]`
	selFormErrors = selWizard + `//*[` + hasClass("has-error") + ` or ` + hasClass("invalid-feedback") + ` or ` + hasClass("errorlist") + `]`
	selUsername   = `//*[@name="username"]`
	selPassword   = `//*[@name="password"]`
	selSubmit     = `//*[contains(@id, "submit")]`
)

func selButtonBarText(text string) string {
	return selButtonBar + `[contains(normalize-space(.), ` + literal(text) + `)]`
}

func selTagChip(tag string) string {
	return `//span[contains(., ` + literal(tag) + `)]`
}

func selHeading(text string) string {
	return selWizard + `//h3[contains(., ` + literal(text) + `)]`
}

func selOption(text string) string {
	return `//span[` + hasClass("select2-results") + `]//ul/li[normalize-space(.)=` + literal(text) + `]`
}

func selLockedType(label string) string {
	return `//span[` + hasClass("select2-selection") + `]//*[@title=` + literal(label) + `]`
}

func selLookupFact(fact string) string {
	return `//textarea[@name="msp_expect_string"][contains(., ` + literal(fact) + `)]`
}

func selRow(name string) string {
	return `//tr[td/a[normalize-space(.)=` + literal(name) + `]]`
}

func selEdit(name string) string {
	return selRow(name) + `//*[@id="check-actions"]//*[@data-tip="Edit Check"]`
}

func selRowName(name string) string {
	return `//a[normalize-space(.)=` + literal(name) + `]`
}

func selRowType(name, label string) string {
	return selRow(name) + `/td[normalize-space(.)=` + literal(label) + `]`
}

func selRowAddress(name, address string) string {
	return selRowName(name) + `/following-sibling::a/span[normalize-space(.)=` + literal(address) + `]`
}
