// logengine/pkg/compiler/compile.go
package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"logengine/pkg/logging"
	"logengine/pkg/script"
)

// Compile turns a loaded script Document into a Ruleset: every rule
// section is resolved against the global macro table and its own
// compile-time variables, in the two-pass manner described in §4.2
// (variables first, so a clause may reference a variable declared
// anywhere in its rule, including below it).
//
// Every rule section is compiled independently; a rule with an error
// is skipped (but still reported) so a single bad rule doesn't prevent
// the rest of the script from being checked in one pass.
func Compile(doc *script.Document) (*Ruleset, error) {
	rs := &Ruleset{
		Macros: make(map[string]*Macro),
	}

	for _, e := range doc.Macros {
		rs.Macros[e.LValue] = &Macro{Name: e.LValue, Raw: e.RValue}
	}
	for _, e := range doc.SharedCode {
		rs.SharedCode = append(rs.SharedCode, e.RValue)
	}
	for _, e := range doc.TerminationCode {
		rs.TerminationCode = append(rs.TerminationCode, e.RValue)
	}

	var errs []error
	for _, sec := range doc.Rules {
		rule, err := compileRule(sec, rs.Macros)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rs.Rules = append(rs.Rules, rule)
	}

	if len(errs) > 0 {
		return rs, errors.Join(errs...)
	}
	return rs, nil
}

// clauseMeta describes one recognized PRE/BEGIN/OPTIONAL/END lvalue form.
type clauseMeta struct {
	kind    ClauseKind
	isAccum bool
	isCode  bool
}

func compileRule(sec *script.RawSection, macros map[string]*Macro) (*Rule, error) {
	rule := &Rule{
		Name:       sec.Name,
		Enabled:    true,
		Vars:       make(map[string]*RuleVariable),
		Actions:    make(map[ActionKind]*ActionHandler),
		SourceFile: sec.File,
		SourceLine: sec.Line,
	}

	scriptErr := func(e script.RawEntry, msg string) error {
		return &logging.ScriptError{File: e.File, Line: e.Line, Rule: rule.Name, Message: msg}
	}

	// Pass 1: register every plain variable declaration up front so a
	// clause may forward-reference a variable declared later in the
	// same section.
	for _, e := range sec.Entries {
		if isReservedLValue(e.LValue) {
			continue
		}
		if err := declareVariable(rule, e); err != nil {
			return nil, err
		}
	}

	// Pass 2: walk entries in order, resolving clauses and applying
	// rule-level/pending-clause modifiers as encountered.
	var regexOptions string
	var pendingMatchTimeout int

	for _, e := range sec.Entries {
		switch {
		case e.LValue == "ENABLED":
			v, err := strconv.ParseBool(e.RValue)
			if err != nil {
				return nil, scriptErr(e, fmt.Sprintf("ENABLED must be a boolean, got %q", e.RValue))
			}
			rule.Enabled = v

		case e.LValue == "PRIORITY":
			v, err := strconv.Atoi(e.RValue)
			if err != nil {
				return nil, scriptErr(e, fmt.Sprintf("PRIORITY must be an integer, got %q", e.RValue))
			}
			rule.Priority = v

		case e.LValue == "REGEX_OPTIONS":
			regexOptions = e.RValue

		case e.LValue == "RULE_TIMEOUT" || e.LValue == "TIMEOUT":
			secs, err := parseTimeoutValue(e.RValue)
			if err != nil {
				return nil, scriptErr(e, err.Error())
			}
			rule.RuleTimeout = secs

		case e.LValue == "MATCH_TIMEOUT":
			secs, err := parseTimeoutValue(e.RValue)
			if err != nil {
				return nil, scriptErr(e, err.Error())
			}
			pendingMatchTimeout = secs

		case e.LValue == "MATCH_NEXT_LINE":
			v, err := strconv.ParseBool(e.RValue)
			if err != nil {
				return nil, scriptErr(e, fmt.Sprintf("MATCH_NEXT_LINE must be a boolean, got %q", e.RValue))
			}
			if v {
				pendingMatchTimeout = 1
			}

		case strings.HasPrefix(e.LValue, "ACTION."):
			kind := ActionKind(strings.TrimPrefix(e.LValue, "ACTION."))
			if !validActionKind(kind) {
				return nil, scriptErr(e, fmt.Sprintf("unrecognized action %q", e.LValue))
			}
			if _, dup := rule.Actions[kind]; dup {
				return nil, scriptErr(e, fmt.Sprintf("duplicate action %q", e.LValue))
			}
			rule.Actions[kind] = &ActionHandler{Kind: kind, Body: e.RValue, SourceFile: e.File, SourceLine: e.Line}

		default:
			meta, ok := parseClauseLValue(e.LValue)
			if !ok {
				// not a clause keyword: already handled as a plain
				// variable declaration in pass 1.
				continue
			}
			if meta.kind == ClauseOptional && meta.isCode {
				return nil, scriptErr(e, "OPTIONAL_CODE is an error")
			}

			timeout := pendingMatchTimeout
			pendingMatchTimeout = 0

			if meta.kind == ClauseOptional {
				oc := &OptionalClause{RegexOptions: regexOptions, SourceFile: e.File, SourceLine: e.Line}
				resolved, extracts, inserts, err := ResolveClauseText(e.RValue, rule, macros)
				if err != nil {
					return nil, scriptErr(e, err.Error())
				}
				if len(inserts) > 0 {
					return nil, scriptErr(e, "OPTIONAL clauses may not reference unbound runtime variables")
				}
				oc.RegexText = resolved
				oc.RuntimeExtracts = extracts
				oc.CacheKey = resolved
				rule.Optional = append(rule.Optional, oc)
				continue
			}

			mc := &MatchClause{
				Kind:         meta.kind,
				IsAccum:      meta.isAccum,
				IsCode:       meta.isCode,
				RegexOptions: regexOptions,
				RawText:      e.RValue,
				MatchTimeout: timeout,
				SourceFile:   e.File,
				SourceLine:   e.Line,
			}
			if meta.isCode {
				mc.CodeBody = e.RValue
			} else {
				resolved, extracts, inserts, err := ResolveClauseText(e.RValue, rule, macros)
				if err != nil {
					return nil, scriptErr(e, err.Error())
				}
				mc.ResolvedText = resolved
				mc.RuntimeExtracts = extracts
				mc.RuntimeInserts = inserts
				if mc.Cacheable() {
					mc.CacheKey = resolved
				}
			}
			rule.MatchList = append(rule.MatchList, mc)
		}
	}

	if rule.FirstNonPreIndex() < 0 {
		logging.Logger.Warn().Str("rule", rule.Name).Msg("rule has no BEGIN clause; dropping")
		return nil, scriptErr(script.RawEntry{File: sec.File, Line: sec.Line}, fmt.Sprintf("rule %q has no BEGIN clause", rule.Name))
	}
	if idx := rule.FirstNonPreIndex(); rule.MatchList[idx].IsAccum {
		return nil, fmt.Errorf("E: %s:%d: %s: first BEGIN clause may not be ACCUM", rule.SourceFile, rule.MatchList[idx].SourceLine, rule.Name)
	}
	if len(rule.MatchList) > 0 && rule.MatchList[0].Kind == ClausePre && rule.MatchList[0].IsAccum {
		return nil, fmt.Errorf("E: %s:%d: %s: first PRE clause may not be ACCUM", rule.SourceFile, rule.MatchList[0].SourceLine, rule.Name)
	}

	return rule, nil
}

func isReservedLValue(lv string) bool {
	switch lv {
	case "ENABLED", "PRIORITY", "REGEX_OPTIONS", "RULE_TIMEOUT", "TIMEOUT", "MATCH_TIMEOUT", "MATCH_NEXT_LINE":
		return true
	}
	if strings.HasPrefix(lv, "ACTION.") {
		return true
	}
	if _, ok := parseClauseLValue(lv); ok {
		return true
	}
	return false
}

// declareVariable registers a plain `NAME=value` entry as a rule
// variable: `<RTVAR>` marks it unbound until the runtime binds it via a
// regex extract or a cross-rule import; anything else is a fixed
// compile-time value usable like a macro within this rule (§3, §4.2).
func declareVariable(rule *Rule, e script.RawEntry) error {
	key := strings.ToUpper(e.LValue)
	if _, exists := rule.Vars[key]; exists {
		return &logging.ScriptError{File: e.File, Line: e.Line, Rule: rule.Name, Message: fmt.Sprintf("variable %q declared more than once", e.LValue)}
	}
	if strings.TrimSpace(e.RValue) == "<RTVAR>" {
		rule.Vars[key] = &RuleVariable{Name: e.LValue, IsRuntime: true}
		return nil
	}
	rule.Vars[key] = &RuleVariable{Name: e.LValue, Value: e.RValue}
	return nil
}

func parseTimeoutValue(v string) (int, error) {
	if strings.EqualFold(strings.TrimSpace(v), "DEFAULT") {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("expected an integer or DEFAULT, got %q", v)
	}
	return n, nil
}

func validActionKind(k ActionKind) bool {
	switch k {
	case ActionCreate, ActionComplete, ActionDestroy, ActionTimeout, ActionMatchTimeout, ActionMissing, ActionIncomplete:
		return true
	}
	return false
}

// parseClauseLValue recognizes PRE/BEGIN/END/OPTIONAL and their
// [_MATCH][_ACCUM|_CODE] suffix forms (§4.1).
func parseClauseLValue(lv string) (clauseMeta, bool) {
	bases := map[string]ClauseKind{
		"PRE":      ClausePre,
		"BEGIN":    ClauseBegin,
		"END":      ClauseEnd,
		"OPTIONAL": ClauseOptional,
	}
	for baseName, kind := range bases {
		if lv == baseName {
			return clauseMeta{kind: kind}, true
		}
		rest, ok := strings.CutPrefix(lv, baseName+"_")
		if !ok {
			continue
		}
		switch rest {
		case "MATCH":
			return clauseMeta{kind: kind}, true
		case "ACCUM":
			return clauseMeta{kind: kind, isAccum: true}, true
		case "CODE":
			return clauseMeta{kind: kind, isCode: true}, true
		case "MATCH_ACCUM":
			return clauseMeta{kind: kind, isAccum: true}, true
		case "MATCH_CODE":
			return clauseMeta{kind: kind, isCode: true}, true
		}
	}
	return clauseMeta{}, false
}

