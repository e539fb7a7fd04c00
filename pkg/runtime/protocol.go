// logengine/pkg/runtime/protocol.go
package runtime

import (
	"logengine/pkg/compiler"
	"logengine/pkg/logging"
)

// ProcessLine runs one line of logfile through every enabled rule's
// live instances, then tries to start new candidates, per §4.4's
// per-line protocol:
//  1. advance every live instance against the line.
//  2. for every rule, try to start a new candidate instance at the
//     line.
func (e *Engine) ProcessLine(logfile, raw string) error {
	e.lineID++
	e.currentLogfile = logfile
	e.lastLine = raw

	e.advance(raw)
	if e.stopRequested {
		return nil
	}
	e.createCandidates(raw)
	return nil
}

// advance steps every currently-live instance forward against line (one
// matched clause, after first stepping past an ACCUM clause the line
// fails to match), firing TIMEOUT/MATCH_TIMEOUT/INCOMPLETE/COMPLETE
// as appropriate (§4.4). It snapshots the live list first since
// completion/destruction mutates e.live as it iterates.
func (e *Engine) advance(line string) {
	snapshot := make([]*Instance, len(e.live))
	copy(snapshot, e.live)

	for _, inst := range snapshot {
		if !e.isLive(inst) {
			continue
		}
		e.advanceOne(inst, line)
		if e.stopRequested {
			return
		}
	}
}

func (e *Engine) isLive(inst *Instance) bool {
	for _, l := range e.live {
		if l == inst {
			return true
		}
	}
	return false
}

// tryClause evaluates the instance's current clause against line,
// applying the extract/advance-or-stay rule of §4.4 step 2's first
// bullet, and reports whether it matched along with the clause that
// was evaluated (before any advance).
func (e *Engine) tryClause(inst *Instance, line string) (bool, *compiler.MatchClause) {
	m := inst.Rule.MatchList[inst.Index]
	matched, groups := e.evalMatchClause(inst, inst.Index, m, line)
	if matched {
		inst.LastMatchLine = e.lineID
		extractInto(inst.Vars, m.RuntimeExtracts, groups)
		if !(m.IsAccum && !m.IsCode) {
			inst.Index++
		}
		return true, m
	}
	if m.IsAccum {
		inst.Index++
	}
	return false, m
}

func (e *Engine) advanceOne(inst *Instance, line string) {
	rule := inst.Rule
	list := rule.MatchList

	if inst.Index >= len(list) {
		e.complete(inst, line)
		return
	}

	matched, m := e.tryClause(inst, line)

	// The line that terminates an ACCUM run is also tested against the
	// clause the instance just advanced onto, since that same line may
	// carry both the run's terminator and the next clause's trigger
	// (§8 scenario S3's `BEGIN=^A / BEGIN_ACCUM=^X / END=^Z` completing
	// in one pass on its final "Z" line).
	if !matched && m.IsAccum {
		if inst.Index >= len(list) {
			e.complete(inst, line)
			return
		}
		matched, m = e.tryClause(inst, line)
	}

	if matched {
		if m.IsAccum && !m.IsCode {
			return
		}
		if inst.Index >= len(list) {
			e.complete(inst, line)
		}
		return
	}

	e.handleNoProgress(inst, rule, m, line)
}

// handleNoProgress applies the timeout/OPTIONAL checks of §4.4 step 2's
// remaining bullets once a clause has failed to match and made no
// forward progress.
func (e *Engine) handleNoProgress(inst *Instance, rule *compiler.Rule, m *compiler.MatchClause, line string) {
	if m.MatchTimeout > 0 && e.lineID-inst.LastMatchLine >= int64(m.MatchTimeout) {
		e.fireAction(rule, compiler.ActionMatchTimeout, inst, line)
		e.stats.MatchTimeouts++
		e.destroyInstance(inst, line)
		return
	}

	if m.Kind == compiler.ClauseEnd {
		if e.testOptional(inst, rule, line) {
			return
		}
	}

	if rule.RuleTimeout > 0 && e.lineID-inst.StartLine >= int64(rule.RuleTimeout) {
		e.fireAction(rule, compiler.ActionTimeout, inst, line)
		e.stats.Timeouts++
		if m.Kind != compiler.ClausePre {
			e.fireAction(rule, compiler.ActionIncomplete, inst, line)
			e.stats.Incomplete++
		}
		e.destroyInstance(inst, line)
	}
}

// testOptional checks every OPTIONAL clause against line when an END
// clause made no progress (§4.4, §9's "tested on every line the owning
// instance's current clause is END and made no forward progress").
// A match extracts into the instance's variables but never advances
// Index or resets LastMatchLine.
func (e *Engine) testOptional(inst *Instance, rule *compiler.Rule, line string) bool {
	matchedAny := false
	for _, oc := range rule.Optional {
		handle := e.optionalHandles[oc]
		matched, groups := e.cache.Eval(handle, e.lineID, line)
		if matched {
			extractInto(inst.Vars, oc.RuntimeExtracts, groups)
			matchedAny = true
		}
	}
	return matchedAny
}

// findStartIndex walks rule's match-list from the top against the same
// line: every leading PRE clause is a precondition that must match
// (extracting as it goes, but never yielding a start index on its
// own), and the first non-PRE clause that also matches this line
// yields the start index (§4.4 step 3). If any leading PRE fails, or
// the first non-PRE clause fails, the rule creates nothing this line.
func (e *Engine) findStartIndex(rule *compiler.Rule, line string) (int, map[string]interface{}, bool) {
	vars := make(map[string]interface{})
	idx := 0
	for idx < len(rule.MatchList) && rule.MatchList[idx].Kind == compiler.ClausePre {
		m := rule.MatchList[idx]
		matched, groups := e.evalClauseWithVars(rule, idx, m, line, vars, e.lineID)
		if !matched {
			return 0, nil, false
		}
		extractInto(vars, m.RuntimeExtracts, groups)
		idx++
	}

	if idx >= len(rule.MatchList) {
		return 0, nil, false
	}
	m := rule.MatchList[idx]
	matched, groups := e.evalClauseWithVars(rule, idx, m, line, vars, e.lineID)
	if !matched {
		return 0, nil, false
	}
	extractInto(vars, m.RuntimeExtracts, groups)
	return idx, vars, true
}

// createCandidates tries to start a new instance of every enabled rule
// at line (§4.4 step 2). In fast mode, a rule whose first-matched
// clause is also its last is completed directly without ever becoming
// a live Instance (§9's fast-mode CREATE/DESTROY shortcut).
func (e *Engine) createCandidates(line string) {
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		startIdx, vars, ok := e.findStartIndex(rule, line)
		if !ok {
			continue
		}

		nextIdx := startIdx
		m := rule.MatchList[startIdx]
		if !(m.IsAccum && !m.IsCode) {
			nextIdx++
		}

		if e.fast && nextIdx >= len(rule.MatchList) {
			e.fastComplete(rule, vars, line)
			continue
		}

		e.mergeOrCreate(rule, startIdx, nextIdx, vars, line)
	}
}

// mergeOrCreate either folds a fresh match into an existing instance of
// rule that is itself sitting on (or just past) a PRE clause, or else
// creates a brand new instance (§4.4's candidate merging). Merge
// eligibility: the existing instance's current clause is PRE, or the
// clause immediately before it is PRE -- i.e. it has made no progress
// past its own PRE run yet.
func (e *Engine) mergeOrCreate(rule *compiler.Rule, startIdx, nextIdx int, vars map[string]interface{}, line string) {
	for _, inst := range e.liveByRule[rule.Name] {
		if !e.isLive(inst) {
			continue
		}
		if !e.mergeEligible(rule, inst.Index) {
			continue
		}
		inst.Index = nextIdx
		inst.Vars = vars
		inst.StartLine = e.lineID
		inst.LastMatchLine = e.lineID
		if inst.Index >= len(rule.MatchList) {
			e.complete(inst, line)
		}
		return
	}

	inst := newInstance(rule, e.lineID, e.currentLogfile, vars)
	inst.Index = nextIdx
	e.live = append(e.live, inst)
	e.liveByRule[rule.Name] = append(e.liveByRule[rule.Name], inst)
	e.fireAction(rule, compiler.ActionCreate, inst, line)
	e.stats.Created++
	if inst.Index >= len(rule.MatchList) {
		e.complete(inst, line)
	}
}

func (e *Engine) mergeEligible(rule *compiler.Rule, index int) bool {
	if index < len(rule.MatchList) && rule.MatchList[index].Kind == compiler.ClausePre {
		return true
	}
	if index > 0 && rule.MatchList[index-1].Kind == compiler.ClausePre {
		return true
	}
	return false
}

// fastComplete fires CREATE, COMPLETE, and DESTROY for a single-line
// match without ever adding an Instance to the live list (§9).
func (e *Engine) fastComplete(rule *compiler.Rule, vars map[string]interface{}, line string) {
	inst := newInstance(rule, e.lineID, e.currentLogfile, vars)
	e.fireAction(rule, compiler.ActionCreate, inst, line)
	e.fireAction(rule, compiler.ActionComplete, inst, line)
	rule.Found = true
	e.stats.Created++
	e.stats.Completed++
	e.recordPrevious(inst)
	e.fireAction(rule, compiler.ActionDestroy, inst, line)
	e.stats.Destroyed++
}

func (e *Engine) complete(inst *Instance, line string) {
	e.fireAction(inst.Rule, compiler.ActionComplete, inst, line)
	inst.Rule.Found = true
	e.stats.Completed++
	e.recordPrevious(inst)
	e.destroyInstance(inst, line)
}

func (e *Engine) recordPrevious(inst *Instance) {
	e.previous[inst.Rule.Name] = &PreviousInstance{
		RuleName:     inst.Rule.Name,
		StartLine:    inst.StartLine,
		StopLine:     e.lineID,
		Vars:         copyVars(inst.Vars),
		RulesCreated: make(map[string]bool),
	}
}

// destroyInstance fires DESTROY and drops inst from both live lists;
// every lifecycle exit -- completed, timed out, or incomplete at
// end-of-stream -- ends with exactly one DESTROY (§4.4).
func (e *Engine) destroyInstance(inst *Instance, line string) {
	e.fireAction(inst.Rule, compiler.ActionDestroy, inst, line)
	e.stats.Destroyed++
	e.removeLive(inst)
}

func (e *Engine) removeLive(inst *Instance) {
	e.live = removeInstance(e.live, inst)
	e.liveByRule[inst.Rule.Name] = removeInstance(e.liveByRule[inst.Rule.Name], inst)
}

func removeInstance(list []*Instance, inst *Instance) []*Instance {
	out := list[:0]
	for _, l := range list {
		if l != inst {
			out = append(out, l)
		}
	}
	return out
}

// EndOfStream runs the end-of-input protocol (§4.4, §5): every
// still-live instance not sitting purely within its PRE run fires
// INCOMPLETE, every rule that never completed fires MISSING, then every
// TERMINATION_CODE body runs in declaration order. Finally it checks
// that every `-user` option was queried at least once, logging (not
// failing, since the run already finished) if not.
func (e *Engine) EndOfStream() Summary {
	snapshot := make([]*Instance, len(e.live))
	copy(snapshot, e.live)

	for _, inst := range snapshot {
		if inst.Index > 0 {
			e.fireAction(inst.Rule, compiler.ActionIncomplete, inst, e.lastLine)
			e.stats.Incomplete++
		}
		e.destroyInstance(inst, e.lastLine)
	}

	for _, rule := range e.rules {
		if !rule.Found {
			e.fireAction(rule, compiler.ActionMissing, nil, e.lastLine)
			e.stats.Missing++
		}
	}

	for i := 0; i < e.terminationCount; i++ {
		if _, err := e.invoke(terminationName(i), "", map[string]interface{}{}, e.lineID, e.lastLine); err != nil {
			logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeRuntime, Message: "termination code", Err: err, Fields: map[string]interface{}{"index": i}})
		}
	}

	if err := e.opts.CheckAllQueried(); err != nil {
		logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeConfig, Message: "user option never queried", Err: err})
	}

	return e.stats
}
