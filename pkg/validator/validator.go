// logengine/pkg/validator/validator.go
package validator

import (
	"fmt"
	"strings"

	"logengine/pkg/compiler"
)

// ValidateRule re-checks the §3 invariants a compiled Rule must hold
// before it is admitted to the matching runtime's rule list. Most of
// these are already enforced inline by pkg/compiler during resolution;
// this is the post-compile gate the runtime calls once per rule so a
// structurally invalid rule (however it was produced — the native script
// compiler or a Rule built by hand) is caught in one place
// rather than trusted from whichever loader built it.
//
// Grounded on the teacher's pkg/validator.ValidateRule, a single-purpose
// post-build gate with the same terse "return first violation" shape;
// the condition-tree check it made (`len(rule.Conditions.All) == 0 &&
// len(rule.Conditions.Any) == 0`) has no analogue here since this
// engine's Rule has no boolean condition tree — replaced with the §3
// invariants that apply to the ordered match-list model instead.
func ValidateRule(rule *compiler.Rule) error {
	if err := validateHasBegin(rule); err != nil {
		return err
	}
	if err := validateAccumNotFirst(rule); err != nil {
		return err
	}
	if err := validateCaptureOrdinals(rule); err != nil {
		return err
	}
	if err := validateVariableNamespace(rule); err != nil {
		return err
	}
	return nil
}

// validateHasBegin enforces "a rule has >= 1 BEGIN clause after
// compilation" (§3 invariants).
func validateHasBegin(rule *compiler.Rule) error {
	for _, m := range rule.MatchList {
		if m.Kind == compiler.ClauseBegin {
			return nil
		}
	}
	return fmt.Errorf("rule %q: no BEGIN clause", rule.Name)
}

// validateAccumNotFirst enforces "an ACCUM clause never appears as the
// first PRE or first BEGIN" (§3 invariants).
func validateAccumNotFirst(rule *compiler.Rule) error {
	for i, m := range rule.MatchList {
		if !m.IsAccum {
			continue
		}
		if m.Kind != compiler.ClausePre && m.Kind != compiler.ClauseBegin {
			continue
		}
		if isFirstOfKind(rule.MatchList, i, m.Kind) {
			return fmt.Errorf("rule %q: clause %d: ACCUM cannot be the first %s", rule.Name, i, m.Kind)
		}
	}
	return nil
}

func isFirstOfKind(list []*compiler.MatchClause, idx int, kind compiler.ClauseKind) bool {
	for i := 0; i < idx; i++ {
		if list[i].Kind == kind {
			return false
		}
	}
	return true
}

// validateCaptureOrdinals re-derives the open-paren count of each
// clause's resolved text and confirms every variable captured from that
// clause names an ordinal that exists within it — catching a resolver
// bug (or a hand-built Rule from another loader) rather than trusting
// the recorded ordinal blindly (§3 invariants).
func validateCaptureOrdinals(rule *compiler.Rule) error {
	for i, m := range rule.MatchList {
		if m.IsCode {
			continue
		}
		groups := countOpenParens(m.ResolvedText)
		for _, ex := range m.RuntimeExtracts {
			if ex.Group < 1 || ex.Group > groups {
				return fmt.Errorf("rule %q: clause %d: variable %q has out-of-range capture ordinal %d (clause has %d groups)",
					rule.Name, i, ex.VarName, ex.Group, groups)
			}
		}
	}
	return nil
}

// countOpenParens counts capturing-group-opening parens: non-escaped,
// and not part of a `(?...)` inline option/non-capturing group. (The
// resolver's ordinal counter counts every non-escaped paren, `(?` ones
// included.)
func countOpenParens(text string) int {
	count := 0
	backslashes := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\\':
			backslashes++
			continue
		case '(':
			if backslashes%2 == 0 && !strings.HasPrefix(text[i:], "(?") {
				count++
			}
		}
		backslashes = 0
	}
	return count
}

// validateVariableNamespace enforces "each rule owns its variables; a
// name collision within a rule is a compile error" (§3 invariants) and
// the global case-insensitive/upper-case storage rule — a Rule built by
// a non-compiler loader could hand back variables whose names weren't
// already upper-cased by pkg/compiler's declareVariable.
func validateVariableNamespace(rule *compiler.Rule) error {
	seen := make(map[string]bool, len(rule.Vars))
	for name := range rule.Vars {
		upper := strings.ToUpper(name)
		if name != upper {
			return fmt.Errorf("rule %q: variable %q not stored under its upper-case key", rule.Name, name)
		}
		if seen[upper] {
			return fmt.Errorf("rule %q: duplicate variable %q", rule.Name, upper)
		}
		seen[upper] = true
	}
	return nil
}
