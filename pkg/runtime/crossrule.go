// logengine/pkg/runtime/crossrule.go
package runtime

// This file implements action.Callbacks (GetUserOpt through
// ProcessingComplete); the WriteToBuffer/WriteListToFiles family lives
// in engine.go alongside the buffer and FileWriter fields they touch
// directly.

// GetUserOpt satisfies LOGENGINE_GET_USER_OPT (§6): the most recently
// set value of a `-user` option, marking it queried.
func (e *Engine) GetUserOpt(name string) (string, bool) {
	return e.opts.Get(name)
}

// ResetRuleInstances destroys every live instance of ruleName, firing
// DESTROY for each, without touching its previous-instance snapshot or
// Found flag (§6).
func (e *Engine) ResetRuleInstances(ruleName string) {
	snapshot := make([]*Instance, len(e.liveByRule[ruleName]))
	copy(snapshot, e.liveByRule[ruleName])
	for _, inst := range snapshot {
		e.destroyInstance(inst, e.lastLine)
	}
}

// HasRuleEverMatched reports whether ruleName has ever reached COMPLETE.
func (e *Engine) HasRuleEverMatched(ruleName string) bool {
	_, ok := e.previous[ruleName]
	return ok
}

// GetLastRuleInst exposes the variable table of ruleName's most recent
// completion, if any.
func (e *Engine) GetLastRuleInst(ruleName string) (map[string]interface{}, bool) {
	p, ok := e.previous[ruleName]
	if !ok {
		return nil, false
	}
	return copyVars(p.Vars), true
}

// CompareRules implements compare_rules (§6): among candidates, picks
// the one whose last completion started after the start of the
// controller's own last completion and has not already armed the
// controller; among those, the one that ran latest (highest StopLine)
// wins. The winner
// is marked so it cannot re-arm the same controller from the same
// snapshot (§4.4, §8 law 7).
func (e *Engine) CompareRules(controller string, candidates []string) (string, bool) {
	controllerLastStart := int64(-1)
	if p, ok := e.previous[controller]; ok {
		controllerLastStart = p.StartLine
	}

	var winner string
	var winnerStop int64 = -1
	for _, name := range candidates {
		p, ok := e.previous[name]
		if !ok {
			continue
		}
		if p.RulesCreated[controller] {
			continue
		}
		if p.StartLine <= controllerLastStart {
			continue
		}
		if p.StopLine > winnerStop {
			winner = name
			winnerStop = p.StopLine
		}
	}
	if winner == "" {
		return "", false
	}
	e.previous[winner].RulesCreated[controller] = true
	return winner, true
}

// ImportInstVars copies ruleName's last-completion variable table into
// the currently-executing action/code clause's live variable table
// (§6's import_inst_vars), so the instance's later clause evaluations and
// actions see the imported values. The script variables of the body that
// is running are not updated.
func (e *Engine) ImportInstVars(controller string, ruleName string) bool {
	p, ok := e.previous[ruleName]
	if !ok {
		return false
	}
	if e.activeVars == nil {
		return false
	}
	for k, v := range p.Vars {
		e.activeVars[k] = v
	}
	return true
}

// CompareRulesAndImport is compare_rules_and_import: CompareRules
// followed by ImportInstVars of the winner (§6).
func (e *Engine) CompareRulesAndImport(controller string, candidates []string) (string, bool) {
	winner, ok := e.CompareRules(controller, candidates)
	if !ok {
		return "", false
	}
	e.ImportInstVars(controller, winner)
	return winner, true
}

// ProcessingComplete implements processing_complete (§6): the CLI's
// read loop checks Done() after each line and stops early.
func (e *Engine) ProcessingComplete() {
	e.stopRequested = true
}
