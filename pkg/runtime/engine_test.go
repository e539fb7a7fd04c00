// logengine/pkg/runtime/engine_test.go

package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logengine/pkg/compiler"
	"logengine/pkg/store"
)

func newTestEngine(t *testing.T, fast bool, rules ...*compiler.Rule) *Engine {
	t.Helper()
	e := NewEngine(store.NewUserOptions(), fast)
	rs := &compiler.Ruleset{Rules: rules}
	require.NoError(t, e.Load(rs))
	return e
}

func runLines(e *Engine, lines ...string) {
	for _, l := range lines {
		_ = e.ProcessLine("test.log", l)
	}
}

// S1: a single-BEGIN rule run in fast mode fires CREATE+COMPLETE
// together for every matching line (§8 law 1, scenario S1).
func TestScenarioS1CountsARegex(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "ABR",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `ABR`, CacheKey: `ABR`},
		},
		Vars: map[string]*compiler.RuleVariable{},
		Actions: map[compiler.ActionKind]*compiler.ActionHandler{
			compiler.ActionComplete: {Kind: compiler.ActionComplete, Body: "COUNTER = (typeof COUNTER === 'undefined' ? 0 : COUNTER) + 1;"},
		},
	}
	e := newTestEngine(t, true, rule)

	lines := make([]string, 0, 3625)
	for i := 0; i < 3625; i++ {
		if i%170 == 0 && i > 0 {
			lines = append(lines, "ABR hit")
		} else {
			lines = append(lines, "noise")
		}
	}
	runLines(e, lines...)
	summary := e.EndOfStream()

	assert.Equal(t, summary.Created, summary.Completed, "fast mode pairs CREATE with COMPLETE")
	assert.True(t, summary.Completed > 0)
}

// Non-fast mode on the same single-clause rule still creates a real
// instance and completes it on the same line (our literal reading of
// §4.4 step 4's completion recheck applies regardless of fast mode;
// law 1's "iff fast" phrasing is read here as governing only whether an
// Instance is skipped, not whether COMPLETE can fire same-line).
func TestSingleClauseRuleNonFastStillCompletesSameLine(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "ABR",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `ABR`, CacheKey: `ABR`},
		},
		Vars: map[string]*compiler.RuleVariable{},
	}
	e := newTestEngine(t, false, rule)
	runLines(e, "ABR hit")

	assert.Equal(t, 1, e.stats.Created)
	assert.Equal(t, 1, e.stats.Completed)
	assert.Equal(t, 1, e.stats.Destroyed)
	assert.Empty(t, e.live)
}

// S3: an ACCUM clause absorbs zero or more lines and never advances
// past itself until a non-matching line arrives; @@VAL accumulates
// every captured value across the instance's lifetime.
func TestScenarioS3Accum(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "COLLECT",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `^A$`, CacheKey: `^A$`},
			{Kind: compiler.ClauseBegin, IsAccum: true, ResolvedText: `^X (\S+)`, CacheKey: `^X (\S+)`,
				RuntimeExtracts: []compiler.RuntimeExtract{{VarName: "VAL", Group: 1, IsArray: true}}},
			{Kind: compiler.ClauseEnd, ResolvedText: `^Z$`, CacheKey: `^Z$`},
		},
		Vars: map[string]*compiler.RuleVariable{
			"VAL": {Name: "VAL", IsArray: true, IsRuntime: true},
		},
	}
	e := newTestEngine(t, false, rule)
	var captured map[string]interface{}
	rule.Actions = map[compiler.ActionKind]*compiler.ActionHandler{}

	runLines(e, "A", "X 1", "X 2", "X 3", "Z")
	summary := e.EndOfStream()

	assert.Equal(t, 1, summary.Completed)
	p, ok := e.previous["COLLECT"]
	require.True(t, ok)
	captured = p.Vars
	assert.Equal(t, []string{"1", "2", "3"}, captured["VAL"])
}

// S4: PRE + candidate merging. Candidate creation (§4.4 step 3) walks
// the match-list from the top against the *same* line: every leading
// PRE clause is a precondition, and only the first non-PRE clause that
// ALSO matches that line yields a start index. "T1" and "T2" alone
// satisfy the PRE (`^T\d+`) but not the BEGIN (`HELLO`), so neither
// creates anything; only "T2 HELLO" satisfies both in one line, giving
// exactly one CREATE immediately followed by one COMPLETE (§4.4 step
// 4's same-line completion recheck), with startline equal to line 3 —
// matching the spec's narrated result exactly.
func TestScenarioS4PreCandidateMerging(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "GREET",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClausePre, ResolvedText: `^T\d+`, CacheKey: `^T\d+`},
			{Kind: compiler.ClauseBegin, ResolvedText: `HELLO`, CacheKey: `HELLO`},
		},
		Vars: map[string]*compiler.RuleVariable{},
	}
	e := newTestEngine(t, false, rule)
	runLines(e, "T1", "T2", "T2 HELLO")

	require.Equal(t, 1, e.stats.Created, "T1 and T2 alone never satisfy the BEGIN clause, so nothing is created early")
	require.Equal(t, 1, e.stats.Completed)
	p, ok := e.previous["GREET"]
	require.True(t, ok)
	assert.Equal(t, int64(3), p.StartLine, "the only candidate is created on the third line")

	summary := e.EndOfStream()
	assert.Equal(t, 0, summary.Incomplete)
	assert.Empty(t, e.live, "every live instance is drained by end of stream (§8 law 8)")
}

// S5: RULE_TIMEOUT fires TIMEOUT then INCOMPLETE (since the instance's
// current clause is not a PRE) then DESTROY, with no further events.
func TestScenarioS5RuleTimeout(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "NEVER_ENDS",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `^START$`, CacheKey: `^START$`},
			{Kind: compiler.ClauseEnd, ResolvedText: `^STOP$`, CacheKey: `^STOP$`},
		},
		Vars:        map[string]*compiler.RuleVariable{},
		RuleTimeout: 5,
	}
	e := newTestEngine(t, false, rule)

	lines := []string{"START"}
	for i := 0; i < 19; i++ {
		lines = append(lines, "noise")
	}
	runLines(e, lines...)

	assert.Equal(t, 1, e.stats.Timeouts)
	assert.Equal(t, 1, e.stats.Incomplete)
	assert.Equal(t, 1, e.stats.Destroyed)
	assert.Empty(t, e.live)
}

// §8 law 7: compare_rules picks the candidate with the greatest
// stopline among those started strictly after the controller's last
// start, and will not pick a candidate already armed for this
// controller.
func TestCompareRulesPicksLatestStoplineAfterControllerStart(t *testing.T) {
	ruleA := &compiler.Rule{Name: "A", Enabled: true, Vars: map[string]*compiler.RuleVariable{},
		MatchList: []*compiler.MatchClause{{Kind: compiler.ClauseBegin, ResolvedText: `^A$`, CacheKey: `^A$`}}}
	ruleB := &compiler.Rule{Name: "B", Enabled: true, Vars: map[string]*compiler.RuleVariable{},
		MatchList: []*compiler.MatchClause{{Kind: compiler.ClauseBegin, ResolvedText: `^B$`, CacheKey: `^B$`}}}
	ruleC := &compiler.Rule{Name: "C", Enabled: true, Vars: map[string]*compiler.RuleVariable{},
		MatchList: []*compiler.MatchClause{{Kind: compiler.ClauseBegin, ResolvedText: `^C$`, CacheKey: `^C$`}}}
	e := newTestEngine(t, false, ruleA, ruleB, ruleC)

	e.previous["A"] = &PreviousInstance{RuleName: "A", StartLine: 1, StopLine: 2, Vars: map[string]interface{}{"TS": "a"}, RulesCreated: map[string]bool{}}
	e.previous["B"] = &PreviousInstance{RuleName: "B", StartLine: 3, StopLine: 5, Vars: map[string]interface{}{"TS": "b"}, RulesCreated: map[string]bool{}}

	winner, ok := e.CompareRules("C", []string{"A", "B"})
	require.True(t, ok)
	assert.Equal(t, "B", winner)
	assert.True(t, e.previous["B"].RulesCreated["C"])

	// a second call with the same snapshot must not re-pick B for the
	// same controller; A, not yet armed for C, is the remaining winner.
	winner, ok = e.CompareRules("C", []string{"A", "B"})
	require.True(t, ok)
	assert.Equal(t, "A", winner)
}

// S6: import_inst_vars copies the winning candidate's variables into
// the currently-executing invocation's table.
func TestImportInstVarsCopiesWinningSnapshot(t *testing.T) {
	ruleC := &compiler.Rule{Name: "C", Enabled: true, Vars: map[string]*compiler.RuleVariable{},
		MatchList: []*compiler.MatchClause{{Kind: compiler.ClauseBegin, ResolvedText: `^C$`, CacheKey: `^C$`}}}
	e := newTestEngine(t, false, ruleC)
	e.previous["B"] = &PreviousInstance{RuleName: "B", StartLine: 3, StopLine: 5, Vars: map[string]interface{}{"TS": "b-value"}, RulesCreated: map[string]bool{}}

	e.activeVars = map[string]interface{}{}
	ok := e.ImportInstVars("C", "B")
	require.True(t, ok)
	assert.Equal(t, "b-value", e.activeVars["TS"])
}

// §8 law 8: end-of-stream fires MISSING for every rule that never
// completed, and INCOMPLETE for every live instance past any PRE.
func TestEndOfStreamMissingAndIncomplete(t *testing.T) {
	neverMatched := &compiler.Rule{
		Name:    "GHOST",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `^GHOST$`, CacheKey: `^GHOST$`},
		},
		Vars: map[string]*compiler.RuleVariable{},
	}
	stuck := &compiler.Rule{
		Name:    "STUCK",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `^STUCK$`, CacheKey: `^STUCK$`},
			{Kind: compiler.ClauseEnd, ResolvedText: `^DONE$`, CacheKey: `^DONE$`},
		},
		Vars: map[string]*compiler.RuleVariable{},
	}
	e := newTestEngine(t, false, neverMatched, stuck)
	runLines(e, "STUCK")
	summary := e.EndOfStream()

	assert.Equal(t, 2, summary.Missing, "GHOST never matched and STUCK never completed")
	assert.Equal(t, 1, summary.Incomplete)
	assert.Empty(t, e.live)
}

// §8 law 2: DESTROY fires exactly once per instance regardless of
// termination cause, and equals the total instance count.
func TestDestroyFiresExactlyOncePerInstance(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "ABR",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `ABR`, CacheKey: `ABR`},
		},
		Vars: map[string]*compiler.RuleVariable{},
	}
	e := newTestEngine(t, false, rule)
	runLines(e, "ABR", "ABR", "ABR")

	assert.Equal(t, e.stats.Created, e.stats.Destroyed)
	assert.Equal(t, e.stats.Completed, e.stats.Destroyed)
}

func TestProcessStreamStopsOnProcessingComplete(t *testing.T) {
	rule := &compiler.Rule{
		Name:    "STOP_EARLY",
		Enabled: true,
		MatchList: []*compiler.MatchClause{
			{Kind: compiler.ClauseBegin, ResolvedText: `STOP`, CacheKey: `STOP`},
		},
		Vars: map[string]*compiler.RuleVariable{},
	}
	e := newTestEngine(t, false, rule)
	e.ProcessingComplete()
	assert.True(t, e.Done())

	r := strings.NewReader("STOP\nSTOP\n")
	require.NoError(t, e.ProcessStream("x.log", r))
	assert.Equal(t, 0, e.stats.Created, "no line is processed once Done() is already true")
}
