package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

// Coverage relates the diagnostic codes a run exercised to the codes known
// from the language reference and the test sources.
type Coverage struct {
	Known map[string]struct{}
	Hit   map[string]struct{}

	// Severity maps known codes to the severity the code index assigns
	// them. Codes the index does not list are absent.
	Severity map[string]string

	// Rules are the language rules referenced by passing tests.
	Rules []string
}

// ComputeCoverage builds coverage from outcomes. known is the universe of
// codes; codes hit but not in known are added to it.
func ComputeCoverage(outs []harness.Outcome, known map[string]struct{}) *Coverage {
	c := &Coverage{
		Known: maps.Clone(known),
		Hit:   make(map[string]struct{}),
	}
	if c.Known == nil {
		c.Known = make(map[string]struct{})
	}

	rules := make(map[string]struct{})
	for _, o := range outs {
		for _, code := range o.CodesHit {
			c.Hit[code] = struct{}{}
			c.Known[code] = struct{}{}
		}
		if o.Kind != outcome.Pass {
			continue
		}
		for _, r := range o.Header.CoverageRules {
			rules[r] = struct{}{}
		}
		for _, ref := range o.Header.SpecRefs {
			rules[ref] = struct{}{}
		}
	}
	c.Rules = slices.Sorted(maps.Keys(rules))
	return c
}

// Missing returns the known codes never hit, sorted.
func (c *Coverage) Missing() []string {
	missing := []string{}
	for code := range c.Known {
		if _, ok := c.Hit[code]; !ok {
			missing = append(missing, code)
		}
	}
	slices.Sort(missing)
	return missing
}

// MissingBySeverity groups Missing by severity. Codes without a recorded
// severity are grouped under "unknown". Nil when no severities are known.
func (c *Coverage) MissingBySeverity() map[string][]string {
	if len(c.Severity) == 0 {
		return nil
	}
	groups := make(map[string][]string)
	for _, code := range c.Missing() {
		sev := c.Severity[code]
		if sev == "" {
			sev = "unknown"
		}
		groups[sev] = append(groups[sev], code)
	}
	return groups
}

// Percent is the share of known codes hit.
func (c *Coverage) Percent() float64 {
	if len(c.Known) == 0 {
		return 0
	}
	return 100 * float64(len(c.Hit)) / float64(len(c.Known))
}

func writeCoverageHuman(b *strings.Builder, p *palette, c *Coverage, verbose bool) {
	fmt.Fprintf(b, "\nDiagnostic coverage: %d/%d codes (%.1f%%)\n", len(c.Hit), len(c.Known), c.Percent())
	if groups := c.MissingBySeverity(); groups != nil {
		for _, sev := range slices.Sorted(maps.Keys(groups)) {
			fmt.Fprintf(b, "%s %s\n", p.skip.Sprintf("Not exercised (%s):", sev), strings.Join(groups[sev], ", "))
		}
	} else if missing := c.Missing(); len(missing) > 0 {
		fmt.Fprintf(b, "%s %s\n", p.skip.Sprint("Not exercised:"), strings.Join(missing, ", "))
	}
	if verbose && len(c.Rules) > 0 {
		fmt.Fprintf(b, "Rules covered by passing tests: %s\n", strings.Join(c.Rules, ", "))
	}
}
