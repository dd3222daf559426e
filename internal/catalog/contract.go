package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// Contract is the static definition of one check type.
type Contract struct {
	Type Type

	// SelectorLabel is the option text in the form's type drop-down.
	SelectorLabel string

	// ListLabel is the text rendered in the type column of the checks list.
	ListLabel string

	Target  TargetKind
	Fields  []Field
	Address AddressConvention
	Save    SaveMode

	// Panel is the selector revealed after the first Save in SaveCodePanel mode.
	Panel string

	// Lookup lists the facts a WHOIS-style refresh must populate before the
	// form can be saved.
	Lookup []string

	// Locations overrides the default probe locations for fixtures.
	Locations []string

	// Defaults are extra fixture payload fields, applied before the target.
	Defaults map[string]any
}

const (
	panelRUM    = "h5#rum-code"
	panelCustom = "h5#custom-check-code"
)

var autoLocations = []string{"AUTO"}

var contracts = map[Type]Contract{
	HTTP: {
		Type: HTTP, SelectorLabel: "Website HTTP(S)", ListLabel: "HTTP(S)",
		Target: TargetURL, Address: AddressOrigin, Save: SaveDirect,
		Fields: []Field{{Label: "URL*", Kind: FieldTarget}},
	},
	Transaction: {
		Type: Transaction, SelectorLabel: "Transaction", ListLabel: "Transaction",
		Target: TargetScript, Address: AddressTarget, Save: SaveDirect,
	},
	API: {
		Type: API, SelectorLabel: "API", ListLabel: "API",
		Target: TargetStepURL, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "URL*", Kind: FieldTarget}},
	},
	RUM: {
		Type: RUM, SelectorLabel: "Real User Monitoring", ListLabel: "Real User Monitoring",
		Target: TargetDomain, Address: AddressTarget, Save: SaveCodePanel, Panel: panelRUM,
		Fields: []Field{{Label: "Domain*", Kind: FieldTarget}},
	},
	Group: {
		Type: Group, SelectorLabel: "Group", ListLabel: "group",
		Target: TargetNone, Address: AddressLiteral, Save: SaveDirect,
	},
	Malware: {
		Type: Malware, SelectorLabel: "Malware/Virus", ListLabel: "Malware/Virus",
		Target: TargetDomain, Address: AddressTarget, Save: SaveDirect,
		Fields:    []Field{{Label: "Domain*", Kind: FieldTarget}},
		Locations: autoLocations,
	},
	SSLCert: {
		Type: SSLCert, SelectorLabel: "SSL Certificate", ListLabel: "SSL Certificate",
		Target: TargetDomain, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{
			{Label: "Domain*", Kind: FieldTarget},
			{Label: "Before expiry*", Kind: FieldThreshold},
		},
		Locations: autoLocations,
		Defaults:  map[string]any{"msp_threshold": 30},
	},
	Whois: {
		Type: Whois, SelectorLabel: "Whois/Domain Expiry", ListLabel: "Whois/Domain Expiry",
		Target: TargetDomain, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{
			{Label: "Domain*", Kind: FieldTarget},
			{Label: "Before expiry*", Kind: FieldThreshold},
		},
		Lookup:    []string{"expires", "nameservers", "registrar"},
		Locations: autoLocations,
		Defaults:  map[string]any{"msp_threshold": 30},
	},
	DNS: {
		Type: DNS, SelectorLabel: "DNS", ListLabel: "DNS",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields:   []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
		Defaults: map[string]any{"msp_dns_record_type": "A"},
	},
	ICMP: {
		Type: ICMP, SelectorLabel: "Ping (ICMP)", ListLabel: "ICMP(Ping)",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
	},
	NTP: {
		Type: NTP, SelectorLabel: "NTP", ListLabel: "NTP",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
	},
	SSH: {
		Type: SSH, SelectorLabel: "SSH", ListLabel: "SSH",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
	},
	TCP: {
		Type: TCP, SelectorLabel: "TCP Port", ListLabel: "TCP",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{
			{Label: "Domain or IP*", Kind: FieldTarget},
			{Label: "Port*", Kind: FieldPort},
		},
		Defaults: map[string]any{"msp_port": 1234},
	},
	UDP: {
		Type: UDP, SelectorLabel: "UDP", ListLabel: "UDP",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{
			{Label: "Domain or IP*", Kind: FieldTarget},
			{Label: "Port*", Kind: FieldPort},
			{Label: "String to send*", Kind: FieldSend},
			{Label: "String to expect*", Kind: FieldExpect},
		},
		Defaults: map[string]any{
			"msp_port":          1234,
			"msp_send_string":   "ping",
			"msp_expect_string": "pong",
		},
	},
	IMAP: {
		Type: IMAP, SelectorLabel: "IMAP", ListLabel: "IMAP",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
	},
	POP: {
		Type: POP, SelectorLabel: "POP", ListLabel: "POP",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
	},
	SMTP: {
		Type: SMTP, SelectorLabel: "SMTP", ListLabel: "SMTP",
		Target: TargetHost, Address: AddressTarget, Save: SaveDirect,
		Fields: []Field{{Label: "Domain or IP*", Kind: FieldTarget}},
	},
	Blacklist: {
		Type: Blacklist, SelectorLabel: "Domain Blacklist", ListLabel: "Domain Blacklist",
		Target: TargetDomain, Address: AddressTarget, Save: SaveDirect,
		Fields:    []Field{{Label: "Domain*", Kind: FieldTarget}},
		Locations: autoLocations,
	},
	Heartbeat: {
		Type: Heartbeat, SelectorLabel: "Heartbeat", ListLabel: "Heartbeat",
		Target: TargetNone, Address: AddressLiteral, Save: SaveCodePanel, Panel: panelCustom,
		Defaults: map[string]any{"msp_response_time_sla": 2.2},
	},
	Webhook: {
		Type: Webhook, SelectorLabel: "Incoming Webhook", ListLabel: "Incoming Webhook",
		Target: TargetNone, Address: AddressLiteral, Save: SaveCodePanel, Panel: panelCustom,
		Defaults: map[string]any{"msp_response_time_sla": 2.2},
	},
}

// Lookup returns the contract for t. There is no fallback.
func Lookup(t Type) (Contract, error) {
	c, ok := contracts[t]
	if !ok {
		return Contract{}, &UnknownTypeError{Name: string(t)}
	}
	return c, nil
}

// MustLookup is Lookup for types known at compile time.
func MustLookup(t Type) Contract {
	c, err := Lookup(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse resolves a slug, selector label or list label to a Type.
func Parse(name string) (Type, error) {
	if _, ok := contracts[Type(name)]; ok {
		return Type(name), nil
	}
	for _, t := range Types {
		c := contracts[t]
		if name == c.SelectorLabel || name == c.ListLabel {
			return t, nil
		}
	}
	return "", &UnknownTypeError{Name: name}
}

// HasTarget reports whether the type is identified by a target value.
func (c Contract) HasTarget() bool {
	return c.Target != TargetNone
}

// FormValue is the text typed into the target field for a given target.
func (c Contract) FormValue(target string) string {
	if c.Target == TargetStepURL {
		return "https://" + target + "/api/v1/endpoint"
	}
	return target
}

// ExpectedAddress is what the list renders in the address column.
func (c Contract) ExpectedAddress(target string) (string, error) {
	switch c.Address {
	case AddressLiteral:
		return string(c.Type), nil
	case AddressTarget:
		if target == "" {
			return "", fmt.Errorf("%s: target is required", c.Type)
		}
		return target, nil
	case AddressOrigin:
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("%s: invalid url %q: %w", c.Type, target, err)
		}
		if u.Scheme == "" || u.Hostname() == "" {
			return "", fmt.Errorf("%s: url %q has no scheme or host", c.Type, target)
		}
		return u.Scheme + "://" + u.Hostname(), nil
	default:
		return "", fmt.Errorf("%s: unknown address convention %q", c.Type, c.Address)
	}
}

// Row is the expected rendering of a check in the checks list.
type Row struct {
	Name      string `json:"name"`
	TypeLabel string `json:"type_label"`
	Address   string `json:"address"`
}

// ExpectedRow derives the list row for a check named name with target.
func (c Contract) ExpectedRow(name, target string) (Row, error) {
	addr, err := c.ExpectedAddress(target)
	if err != nil {
		return Row{}, err
	}
	return Row{Name: name, TypeLabel: c.ListLabel, Address: addr}, nil
}

// Payload builds the type-specific part of a fixture creation request.
// The caller's extra fields win over everything the contract supplies.
func (c Contract) Payload(target string, extra map[string]any) map[string]any {
	out := make(map[string]any, len(c.Defaults)+len(extra)+2)
	for k, v := range c.Defaults {
		out[k] = v
	}
	if len(c.Locations) > 0 {
		out["locations"] = append([]string(nil), c.Locations...)
	}

	switch c.Target {
	case TargetScript:
		out["msp_script"] = scriptJSON("C_OPEN_URL", "https://"+target)
	case TargetStepURL:
		out["msp_script"] = scriptJSON("C_POST", target)
	case TargetNone:
	default:
		out["msp_address"] = target
	}

	for k, v := range extra {
		out[k] = v
	}
	return out
}

func scriptJSON(step, target string) string {
	return `[{"step_def": "` + step + `", "values":{"url": "` + target + `"}}]`
}

// FieldLabels returns the labels of the contract's fields in form order.
func (c Contract) FieldLabels() []string {
	labels := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		labels[i] = f.Label
	}
	return labels
}

// String renders the contract on one line, pipe separated.
func (c Contract) String() string {
	panel := c.Panel
	if panel == "" {
		panel = "-"
	}
	fields := strings.Join(c.FieldLabels(), ",")
	if fields == "" {
		fields = "-"
	}
	return strings.Join([]string{
		string(c.Type), c.SelectorLabel, c.ListLabel, string(c.Target),
		string(c.Address), string(c.Save), panel, fields,
	}, "|")
}
