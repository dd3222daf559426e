// Package catalog is the check type contract table.
//
// Every check type the product supports has exactly one Contract. The
// contract is the single source of truth for three consumers:
//
//   - the UI flows, which read the selector label, field labels and save
//     behaviour to populate the Add/Edit Check form
//   - the list assertions, which derive the expected type label and address
//     column from the same target value that was typed into the form
//   - fixture provisioning, which builds a type-specific API payload
//
// # Address Conventions
//
//   - origin:  scheme and host of the URL ("https://example.com")
//   - target:  the domain or host exactly as entered
//   - literal: the type slug itself ("group", "heartbeat", "webhook")
//
// The Group literal is intentional and must not be treated as a placeholder.
//
// # Validation
//
// Validate checks the table against an embedded CUE schema and verifies that
// the enumeration is covered exactly once. Lookup never falls back: an
// unmapped type is a configuration error.
package catalog
