package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed contract.cue
var schemaSource string

// contractDoc is the CUE-facing shape of a Contract.
type contractDoc struct {
	SelectorLabel string   `json:"selector_label"`
	ListLabel     string   `json:"list_label"`
	Target        string   `json:"target"`
	Address       string   `json:"address"`
	Save          string   `json:"save"`
	Panel         string   `json:"panel,omitempty"`
	Fields        []Field  `json:"fields,omitempty"`
	Lookup        []string `json:"lookup,omitempty"`
	Locations     []string `json:"locations,omitempty"`
}

func toDoc(c Contract) contractDoc {
	return contractDoc{
		SelectorLabel: c.SelectorLabel,
		ListLabel:     c.ListLabel,
		Target:        string(c.Target),
		Address:       string(c.Address),
		Save:          string(c.Save),
		Panel:         c.Panel,
		Fields:        c.Fields,
		Lookup:        c.Lookup,
		Locations:     c.Locations,
	}
}

// ValidationError lists every problem found in a contract table.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("check type catalog is invalid:\n  %s", strings.Join(e.Problems, "\n  "))
}

// Validate checks the built-in contract table.
func Validate() error {
	return validateTable(Types, contracts)
}

func validateTable(enum []Type, table map[Type]Contract) error {
	var problems []string

	seen := make(map[Type]bool, len(enum))
	for _, t := range enum {
		if seen[t] {
			problems = append(problems, fmt.Sprintf("%s: listed twice in enumeration", t))
			continue
		}
		seen[t] = true
		c, ok := table[t]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: no contract entry", t))
			continue
		}
		if c.Type != t {
			problems = append(problems, fmt.Sprintf("%s: contract is keyed under the wrong type %q", t, c.Type))
		}
	}
	for t := range table {
		if !seen[t] {
			problems = append(problems, fmt.Sprintf("%s: contract entry is not in the enumeration", t))
		}
	}

	docs := make(map[string]contractDoc, len(table))
	for t, c := range table {
		docs[string(t)] = toDoc(c)
	}
	if err := validateSchema(docs); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &ValidationError{Problems: problems}
}

func validateSchema(docs map[string]contractDoc) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("contract.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %s", cueerrors.Details(err, nil))
	}

	v := schema.FillPath(cue.ParsePath("contracts"), docs)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// Render writes the table one contract per line in enumeration order.
func Render(w io.Writer) error {
	for _, t := range Types {
		if _, err := fmt.Fprintln(w, contracts[t].String()); err != nil {
			return err
		}
	}
	return nil
}

// All returns every contract in enumeration order.
func All() []Contract {
	out := make([]Contract, 0, len(Types))
	for _, t := range Types {
		out = append(out, contracts[t])
	}
	return out
}
