// logengine/pkg/compiler/structs.go
package compiler

// ClauseKind identifies which of the four clause roles (§3, §4.1) a
// MatchClause plays within a rule's ordered match-list.
type ClauseKind string

const (
	ClausePre      ClauseKind = "PRE"
	ClauseBegin    ClauseKind = "BEGIN"
	ClauseOptional ClauseKind = "OPTIONAL"
	ClauseEnd      ClauseKind = "END"
)

// ActionKind enumerates the rule lifecycle events a rule may bind a
// handler to (§4.2).
type ActionKind string

const (
	ActionCreate       ActionKind = "CREATE"
	ActionComplete     ActionKind = "COMPLETE"
	ActionDestroy      ActionKind = "DESTROY"
	ActionTimeout      ActionKind = "TIMEOUT"
	ActionMatchTimeout ActionKind = "MATCH_TIMEOUT"
	ActionMissing      ActionKind = "MISSING"
	ActionIncomplete   ActionKind = "INCOMPLETE"
)

// Macro is a named, immutable snippet of resolved-at-use text declared
// in a DEFINE_MACRO section.
type Macro struct {
	Name string
	Raw  string
}

// Script tracks a single loaded script file; Processed guards against
// the dedup-by-basename rule for INCLUDE (§4.1).
type Script struct {
	Name      string
	Processed bool
}

// RuntimeExtract binds a named variable to a capture-group ordinal
// within the clause's fully-resolved regex text (§3).
type RuntimeExtract struct {
	VarName string
	Group   int
	IsArray bool
}

// RuntimeInsert records where a reference to an as-yet-unbound runtime
// variable was textually replaced by a placeholder during resolution,
// so the matching runtime can substitute the instance's current value
// before evaluating the clause (§3, §4.2).
type RuntimeInsert struct {
	VarName string
	Offset  int
	Length  int
}

// MatchClause is one PRE/BEGIN/OPTIONAL/END entry of a rule, fully
// resolved by the compiler. Exactly one of ResolvedText or CodeBody is
// meaningful, selected by IsCode.
type MatchClause struct {
	Kind         ClauseKind
	IsAccum      bool
	IsCode       bool
	RegexOptions string

	RawText      string
	ResolvedText string // final regex source, with runtime-insert placeholders still in place
	CodeBody     string // source for *_CODE clauses, compiled by the action host

	RuntimeInserts  []RuntimeInsert
	RuntimeExtracts []RuntimeExtract

	MatchTimeout int // seconds; 0 = none

	// CacheKey is the resolved regex text used to dedupe identical clauses
	// in the regex cache. Left empty when the clause has any runtime
	// insert, since its final text is only known per-instance (§4.3).
	CacheKey string

	SourceFile string
	SourceLine int
}

// Cacheable reports whether this clause's regex can be shared via the
// regex cache (§4.3): a clause with a runtime insert is never cacheable,
// and code clauses have no regex at all.
func (c *MatchClause) Cacheable() bool {
	return !c.IsCode && len(c.RuntimeInserts) == 0
}

// OptionalClause is tested only when a live instance's current clause is
// an END and made no forward progress on the current line (§4.4, §9).
type OptionalClause struct {
	RegexText    string
	RegexOptions string
	CacheKey     string

	RuntimeExtracts []RuntimeExtract

	SourceFile string
	SourceLine int
}

func (o *OptionalClause) Cacheable() bool { return true }

// RuleVariable is one named capture slot owned by a rule: either bound
// at runtime from a regex group (or import_inst_vars), or fixed at
// compile time like a macro (declared with a plain assignment, not
// <RTVAR>) (§3, §4.2).
type RuleVariable struct {
	Name         string
	CaptureGroup int // ordinal within its owning clause; 0 if not regex-bound
	IsArray      bool
	IsRuntime    bool // true for <RTVAR>/$$/@@-declared vars; false for macro-like compile-time values
	Value        string
}

// ActionHandler is a compiled lifecycle action body (§4.2, §6).
type ActionHandler struct {
	Kind       ActionKind
	Body       string
	SourceFile string
	SourceLine int
}

// Rule is one compiled rule: an ordered match-list plus its variables,
// actions, and timeouts (§3).
type Rule struct {
	Name     string
	Enabled  bool
	Priority int

	MatchList []*MatchClause
	Optional  []*OptionalClause

	Vars    map[string]*RuleVariable
	Actions map[ActionKind]*ActionHandler

	RuleTimeout int // seconds; 0 = none

	SourceFile string
	SourceLine int

	// Found is set true the first time any instance of this rule
	// completes; consulted at end-of-stream to fire MISSING (§4.4).
	Found bool
}

// FirstNonPreIndex returns the match-list index of the first non-PRE
// clause, or -1 if the rule has none (an invariant violation caught by
// the validator).
func (r *Rule) FirstNonPreIndex() int {
	for i, m := range r.MatchList {
		if m.Kind != ClausePre {
			return i
		}
	}
	return -1
}

// Ruleset is the fully compiled output of the Rule Compiler: every rule
// from every loaded script, plus the macro table and shared/termination
// code bodies that were used to resolve them.
type Ruleset struct {
	Rules          []*Rule
	Macros         map[string]*Macro
	SharedCode     []string
	TerminationCode []string
}
