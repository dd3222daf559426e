// Package harness runs end-to-end check scenarios against a live product
// instance.
//
// A scenario creates or edits one check of one type through the browser and
// asserts the row the checks list renders for it. Scenarios are grouped in
// suites; a suite name doubles as the tag that isolates its fixtures.
//
// # Suite Format
//
// Besides the built-in suites, suites can be loaded from YAML files:
//
//	suite: checks_create
//	scenarios:
//	  - name: C27 Create Check / Whois/Domain Expiry
//	    kind: create
//	    type: whois
//	    target: google.com
//	    threshold: "30"
//	  - name: C31 Edit Check / DNS
//	    kind: edit
//	    type: dns
//
// Unknown fields are rejected. type accepts a slug or either label of the
// check type. target and threshold pin values that are otherwise generated.
//
// # Execution
//
// The Runner executes scenarios strictly one after another; scenarios share
// one product account and one browser. Each attempt of a scenario acquires
// a fresh isolation scope, so a retry starts again from setup. A scenario is
// bounded by the scenario timeout and the whole run by the global timeout.
package harness
