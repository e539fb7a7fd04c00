// logengine/pkg/runtime/instance.go
package runtime

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"logengine/pkg/compiler"
)

// Instance is one candidate/running match of a Rule (§3's Rule
// Instance): its position within the rule's match-list, the lines it
// has spanned, and the per-instance variable table extracted so far.
// Stamped with a uuid.UUID distinct from its rule name, since a rule
// may have many concurrent instances live at once.
type Instance struct {
	ID    uuid.UUID
	Rule  *compiler.Rule
	Index int

	StartLine     int64
	LastMatchLine int64
	Logfile       string

	// Vars holds each bound variable's value: a string for a scalar
	// extract, []string for an array (`@@NAME`) extract in declaration
	// order.
	Vars map[string]interface{}
}

func newInstance(rule *compiler.Rule, lineID int64, logfile string, vars map[string]interface{}) *Instance {
	return &Instance{
		ID:            uuid.New(),
		Rule:          rule,
		StartLine:     lineID,
		LastMatchLine: lineID,
		Logfile:       logfile,
		Vars:          vars,
	}
}

// stringVar renders a bound variable as a single string for use as a
// runtime-insert substitution (§3, §4.2): the scalar itself, or the most
// recently appended element of an array variable.
func (inst *Instance) stringVar(name string) string {
	return stringVarFromMap(inst.Vars, name)
}

func stringVarFromMap(vars map[string]interface{}, name string) string {
	v, ok := vars[strings.ToUpper(name)]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) == 0 {
			return ""
		}
		return t[len(t)-1]
	default:
		return fmt.Sprintf("%v", t)
	}
}

// copyVars makes a shallow copy of a variable table, used whenever a
// snapshot must outlive the instance it was taken from (previous
// instances, import_inst_vars, action bindings).
func copyVars(vars map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// extractInto applies a clause's runtime-extracts against a completed
// regex match's capture groups (§3, §4.4): arrays append, scalars
// overwrite. groups[0] is the whole match; extract ordinals are
// 1-based, matching regexp.FindStringSubmatch's indexing directly.
func extractInto(vars map[string]interface{}, extracts []compiler.RuntimeExtract, groups []string) {
	for _, ex := range extracts {
		if ex.Group < 0 || ex.Group >= len(groups) {
			continue
		}
		val := groups[ex.Group]
		if ex.IsArray {
			arr, _ := vars[ex.VarName].([]string)
			vars[ex.VarName] = append(arr, val)
			continue
		}
		vars[ex.VarName] = val
	}
}

// PreviousInstance is the last instance of a rule to reach COMPLETE
// (§3, §4.4): a read-only snapshot retained for cross-rule queries. It
// owns a copy of the variable table and never holds a back-pointer into
// the live list (§9).
type PreviousInstance struct {
	RuleName  string
	StartLine int64
	StopLine  int64
	Vars      map[string]interface{}

	// RulesCreated records, per controller rule name, whether that
	// controller has already been "armed" by this specific snapshot via
	// compare_rules/compare_rules_and_import -- preventing the same
	// prerequisite completion from re-triggering the same controller
	// indefinitely (§4.4, §8 law 7). Reset fresh on every new completion
	// of this rule, since a new snapshot is a new prerequisite event.
	RulesCreated map[string]bool
}
