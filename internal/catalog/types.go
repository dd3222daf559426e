package catalog

import (
	"errors"
	"fmt"
)

// Type identifies a check type by its API slug (the <type> in
// /api/v1/checks/add-<type>/).
type Type string

const (
	HTTP        Type = "http"
	Transaction Type = "transaction"
	API         Type = "api"
	RUM         Type = "rum2"
	Group       Type = "group"
	Malware     Type = "malware"
	SSLCert     Type = "ssl-cert"
	Whois       Type = "whois"
	DNS         Type = "dns"
	ICMP        Type = "icmp"
	NTP         Type = "ntp"
	SSH         Type = "ssh"
	TCP         Type = "tcp"
	UDP         Type = "udp"
	IMAP        Type = "imap"
	POP         Type = "pop"
	SMTP        Type = "smtp"
	Blacklist   Type = "blacklist"
	Heartbeat   Type = "heartbeat"
	Webhook     Type = "webhook"
)

// Types is the full enumeration in the order the product lists them.
var Types = []Type{
	HTTP, Transaction, API, RUM, Group, Malware, SSLCert, Whois, DNS, ICMP,
	NTP, SSH, TCP, UDP, IMAP, POP, SMTP, Blacklist, Heartbeat, Webhook,
}

// TargetKind describes what identifies a check of a given type.
type TargetKind string

const (
	TargetURL     TargetKind = "url"      // full URL typed into "URL*"
	TargetDomain  TargetKind = "domain"   // bare domain typed into "Domain*"
	TargetHost    TargetKind = "host"     // domain or IP typed into "Domain or IP*"
	TargetScript  TargetKind = "script"   // domain typed into the transaction editor
	TargetStepURL TargetKind = "step-url" // endpoint URL of an added API step
	TargetNone    TargetKind = "none"     // passive types and groups
)

// AddressConvention describes how the list renders the address column.
type AddressConvention string

const (
	AddressOrigin  AddressConvention = "origin"
	AddressTarget  AddressConvention = "target"
	AddressLiteral AddressConvention = "literal"
)

// SaveMode describes what happens when Save is clicked on a valid form.
type SaveMode string

const (
	// SaveDirect closes the form and returns to the checks list.
	SaveDirect SaveMode = "direct"
	// SaveCodePanel reveals a generated code panel first; a second Save
	// returns to the list.
	SaveCodePanel SaveMode = "code-panel"
)

// FieldKind tells a form flow which generated value belongs in a field.
type FieldKind string

const (
	FieldTarget    FieldKind = "target"
	FieldPort      FieldKind = "port"
	FieldSend      FieldKind = "send"
	FieldExpect    FieldKind = "expect"
	FieldThreshold FieldKind = "threshold"
)

// Field is a labelled, required form input.
type Field struct {
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`
}

// ErrUnknownType is returned by Lookup and Parse for unmapped types.
var ErrUnknownType = errors.New("unknown check type")

// UnknownTypeError reports the offending type name.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownType, e.Name)
}

func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}
