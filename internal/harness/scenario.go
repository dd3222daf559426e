package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/upcheck/internal/catalog"
)

// Kind is what a scenario does with its check.
type Kind string

const (
	KindCreate Kind = "create"
	KindEdit   Kind = "edit"
)

// Built-in suite names. They are also the suite tags.
const (
	SuiteCreate = "checks_create"
	SuiteEdit   = "checks_edit"
)

// Scenario is one create or edit workflow for one check type.
type Scenario struct {
	// Name identifies the scenario. A leading "C<n>" token is the case id
	// results are reported under.
	Name string `yaml:"name"`

	Kind Kind `yaml:"kind"`

	// Type is a check type slug or label; see catalog.Parse.
	Type catalog.Type `yaml:"type"`

	// Target pins the check's target instead of generating one.
	Target string `yaml:"target,omitempty"`

	// Threshold pins the threshold field instead of generating one.
	Threshold string `yaml:"threshold,omitempty"`

	// Suite is filled from the enclosing suite.
	Suite string `yaml:"-"`
}

// Case returns the leading case id of the name, e.g. "C27", or "".
func (s Scenario) Case() string {
	return caseID.FindString(s.Name)
}

var caseID = regexp.MustCompile(`^C\d+`)

// Suite is an ordered list of scenarios sharing a suite tag.
type Suite struct {
	Name      string     `yaml:"suite"`
	Scenarios []Scenario `yaml:"scenarios"`
}

// suiteName is what a suite name may contain; it becomes a product tag.
var suiteName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	suite, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

// ParseSuite decodes a suite document. Unknown fields are an error.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateSuite(&suite); err != nil {
		return nil, err
	}
	return &suite, nil
}

// LoadSuites loads every .yaml and .yml file under dir, in lexical order.
func LoadSuites(dir string) ([]Suite, error) {
	var suites []Suite
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		suite, err := LoadSuite(path)
		if err != nil {
			return err
		}
		suites = append(suites, *suite)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return suites, nil
}

// validateSuite checks required fields, resolves type labels to slugs and
// stamps the suite name onto every scenario.
func validateSuite(s *Suite) error {
	if s.Name == "" {
		return errors.New("suite: field is required")
	}
	if !suiteName.MatchString(s.Name) {
		return fmt.Errorf("suite: %q may only contain letters, digits, '_' and '-'", s.Name)
	}
	if len(s.Scenarios) == 0 {
		return errors.New("scenarios: at least one scenario is required")
	}

	seen := make(map[string]bool, len(s.Scenarios))
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		if err := validateScenario(sc); err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenarios[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true
		sc.Suite = s.Name
	}
	return nil
}

func validateScenario(sc *Scenario) error {
	if strings.TrimSpace(sc.Name) == "" {
		return errors.New("name: field is required")
	}
	switch sc.Kind {
	case KindCreate, KindEdit:
	case "":
		return errors.New("kind: field is required")
	default:
		return fmt.Errorf("kind: unknown kind %q (must be create or edit)", sc.Kind)
	}

	if sc.Type == "" {
		return errors.New("type: field is required")
	}
	t, err := catalog.Parse(string(sc.Type))
	if err != nil {
		return fmt.Errorf("type: %w", err)
	}
	sc.Type = t

	contract := catalog.MustLookup(t)
	if sc.Target != "" && !contract.HasTarget() {
		return fmt.Errorf("target: %s checks have no target", t)
	}
	if sc.Threshold != "" && !hasField(contract, catalog.FieldThreshold) {
		return fmt.Errorf("threshold: %s checks have no threshold field", t)
	}
	return nil
}

func hasField(c catalog.Contract, k catalog.FieldKind) bool {
	for _, f := range c.Fields {
		if f.Kind == k {
			return true
		}
	}
	return false
}

// Case ids of the built-in suites, in catalog order.
var (
	createCases = []int{4, 8, 12, 15, 18, 21, 24, 27, 30, 33, 36, 39, 42, 45, 48, 51, 54, 57, 60, 63}
	editCases   = []int{5, 9, 13, 16, 19, 22, 25, 28, 31, 34, 37, 40, 43, 46, 49, 52, 55, 58, 61, 64}
)

// BuiltinSuites returns the create and edit suites: one scenario per check
// type each.
func BuiltinSuites() []Suite {
	return []Suite{
		builtin(SuiteCreate, KindCreate, "Create", createCases),
		builtin(SuiteEdit, KindEdit, "Edit", editCases),
	}
}

func builtin(name string, kind Kind, verb string, cases []int) Suite {
	s := Suite{Name: name, Scenarios: make([]Scenario, 0, len(catalog.Types))}
	for i, t := range catalog.Types {
		sc := Scenario{
			Name:  fmt.Sprintf("C%d %s Check / %s", cases[i], verb, catalog.MustLookup(t).SelectorLabel),
			Kind:  kind,
			Type:  t,
			Suite: name,
		}
		// The lookup only populates for a registered domain.
		if t == catalog.Whois {
			sc.Target = "google.com"
			sc.Threshold = "30"
		}
		s.Scenarios = append(s.Scenarios, sc)
	}
	return s
}

// Select keeps the suites named in names (all when empty) and, within
// them, the scenarios whose case id or type slug matches the glob pattern
// (all when empty). Suites left without scenarios are dropped.
func Select(suites []Suite, names []string, pattern string) ([]Suite, error) {
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for n := range want {
		if !containsSuite(suites, n) {
			return nil, fmt.Errorf("unknown suite %q", n)
		}
	}

	var out []Suite
	for _, s := range suites {
		if len(want) > 0 && !want[s.Name] {
			continue
		}
		kept := Suite{Name: s.Name}
		for _, sc := range s.Scenarios {
			if pattern != "" && !matches(pattern, sc) {
				continue
			}
			kept.Scenarios = append(kept.Scenarios, sc)
		}
		if len(kept.Scenarios) > 0 {
			out = append(out, kept)
		}
	}
	return out, nil
}

func matches(pattern string, sc Scenario) bool {
	for _, v := range []string{sc.Case(), string(sc.Type)} {
		if ok, _ := filepath.Match(pattern, v); ok && v != "" {
			return true
		}
	}
	return false
}

func containsSuite(suites []Suite, name string) bool {
	for _, s := range suites {
		if s.Name == name {
			return true
		}
	}
	return false
}
