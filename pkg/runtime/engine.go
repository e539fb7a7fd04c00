// logengine/pkg/runtime/engine.go
package runtime

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"logengine/pkg/action"
	"logengine/pkg/compiler"
	"logengine/pkg/logging"
	"logengine/pkg/regexcache"
	"logengine/pkg/store"
	"logengine/pkg/validator"
)

// FileWriter is the output-buffering helper the core hands WRITE_BUFFER
// _TO_FILES/WRITE_LIST_TO_FILES results to; it is an external
// collaborator per §1 ("the output buffering helpers") the CLI supplies,
// not implemented by this package. A nil FileWriter makes those builtins
// no-ops.
type FileWriter interface {
	WriteBuffer(logfile, text string) error
	WriteList(logfile string, items []string) error
}

// Engine is the single owning value for all matching-runtime state
// (§9): the live-instance list and its per-rule index, the
// previous-instance hash, the regex cache, the monotonic line id, and
// the action host. Every subsystem call takes an *Engine rather than
// reading process-globals.
//
// Grounded on the teacher's pkg/runtime.Engine, which held the same
// role (owns the bytecode VM, the fact index, the dashboard hooks) for
// the condition-tree/fact model; this is a ground-up rewrite for the
// ordered match-list/candidate-instance model of §4.4, since the
// teacher's RuleExecutionIndex/FactDependencyIndex have no analogue
// here.
type Engine struct {
	rules []*compiler.Rule
	fast  bool

	cache           *regexcache.Cache
	matchHandles    map[*compiler.MatchClause]regexcache.Handle
	optionalHandles map[*compiler.OptionalClause]regexcache.Handle

	host *action.Host
	opts *store.UserOptions
	files FileWriter

	live       []*Instance
	liveByRule map[string][]*Instance
	previous   map[string]*PreviousInstance

	lineID         int64
	currentLogfile string
	lastLine       string

	terminationCount int
	activeVars       map[string]interface{}
	stopRequested    bool

	buffer strings.Builder
	stats  Summary
}

// NewEngine builds an empty engine bound to opts (the `-user` option
// table) and fast (the `-fast`/`-nofast` CLI switch, §6). Call Load
// with a compiled Ruleset before processing any line.
func NewEngine(opts *store.UserOptions, fast bool) *Engine {
	e := &Engine{
		fast:            fast,
		opts:            opts,
		cache:           regexcache.New(),
		matchHandles:    make(map[*compiler.MatchClause]regexcache.Handle),
		optionalHandles: make(map[*compiler.OptionalClause]regexcache.Handle),
		liveByRule:      make(map[string][]*Instance),
		previous:        make(map[string]*PreviousInstance),
	}
	e.host = action.NewHost(e)
	return e
}

// SetFileWriter wires the output-buffering helper used by
// WRITE_BUFFER_TO_FILES/WRITE_LIST_TO_FILES; the CLI is expected to
// supply one backed by real files.
func (e *Engine) SetFileWriter(fw FileWriter) { e.files = fw }

// Load validates and admits every rule of rs, precompiling its cacheable
// clauses into the regex cache and its action/code bodies into the
// action host (§2's "Regex Cache Builder" and "Action Host" stages).
func (e *Engine) Load(rs *compiler.Ruleset) error {
	for _, rule := range rs.Rules {
		if err := validator.ValidateRule(rule); err != nil {
			return err
		}

		for idx, m := range rule.MatchList {
			if m.IsCode {
				if err := e.host.Compile(clauseName(rule.Name, idx), m.CodeBody); err != nil {
					return fmt.Errorf("rule %q clause %d: %w", rule.Name, idx, err)
				}
				continue
			}
			if !m.Cacheable() {
				continue
			}
			handle, err := e.cache.Compile(withOptions(m.CacheKey, m.RegexOptions))
			if err != nil {
				return fmt.Errorf("rule %q clause %d: %w", rule.Name, idx, err)
			}
			e.matchHandles[m] = handle
		}

		for _, oc := range rule.Optional {
			handle, err := e.cache.Compile(withOptions(oc.RegexText, oc.RegexOptions))
			if err != nil {
				return fmt.Errorf("rule %q optional clause: %w", rule.Name, err)
			}
			e.optionalHandles[oc] = handle
		}

		for kind, handler := range rule.Actions {
			if err := e.host.Compile(actionName(rule.Name, kind), handler.Body); err != nil {
				return fmt.Errorf("rule %q action %s: %w", rule.Name, kind, err)
			}
		}

		e.rules = append(e.rules, rule)
	}

	for i, body := range rs.SharedCode {
		if err := e.host.DeclareGlobal(fmt.Sprintf("SHARED_CODE_%d", i), body); err != nil {
			return err
		}
	}
	for i, body := range rs.TerminationCode {
		if err := e.host.Compile(terminationName(i), body); err != nil {
			return fmt.Errorf("termination code %d: %w", i, err)
		}
	}
	e.terminationCount = len(rs.TerminationCode)

	return nil
}

// ProcessStream feeds every line of r through ProcessLine under
// logfile's name, stopping early if a user action called
// processing_complete (§5's cancellation rule).
func (e *Engine) ProcessStream(logfile string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := e.ProcessLine(logfile, scanner.Text()); err != nil {
			return err
		}
		if e.Done() {
			break
		}
	}
	return scanner.Err()
}

// Done reports whether a user action has called processing_complete;
// the CLI's read loop checks this after each ProcessLine/ProcessStream
// call and proceeds to EndOfStream (§5).
func (e *Engine) Done() bool { return e.stopRequested }

// Buffer returns the current contents accumulated by WRITE_TO_BUFFER.
func (e *Engine) Buffer() string { return e.buffer.String() }

// RegexCacheLen reports the number of distinct compiled regex texts, a
// `-dump`/`-status` diagnostic.
func (e *Engine) RegexCacheLen() int { return e.cache.Len() }

func actionName(ruleName string, kind compiler.ActionKind) string {
	return ruleName + "." + string(kind)
}

func clauseName(ruleName string, idx int) string {
	return fmt.Sprintf("%s.clause.%d", ruleName, idx)
}

func terminationName(idx int) string {
	return fmt.Sprintf("TERMINATION_%d", idx)
}

func withOptions(pattern, options string) string {
	if options == "" {
		return pattern
	}
	return "(?" + options + ")" + pattern
}

// invoke is the single place the engine calls into the action host: it
// records the variable table an in-flight cross-rule builtin
// (compare_rules, import_inst_vars, ...) should see as "the current
// instance" (§4.4), builds the binding, and logs (without treating as
// fatal, §7) any compile/runtime error.
func (e *Engine) invoke(name string, controllerRule string, vars map[string]interface{}, startLine int64, line string) (interface{}, error) {
	e.activeVars = vars
	b := action.Binding{
		Vars:            copyVars(vars),
		LineNumberStart: int(startLine),
		LineNumberStop:  int(e.lineID),
		LineNumberRange: fmt.Sprintf("%d-%d", startLine, e.lineID),
		LineLastRead:    line,
	}
	result, err := e.host.Invoke(name, b, controllerRule, 0)
	if err != nil {
		logging.LogError(logging.Logger, &logging.EngineError{
			Type:    logging.ErrorTypeRuntime,
			Message: fmt.Sprintf("action %q", name),
			Err:     err,
			Fields:  map[string]interface{}{"rule": controllerRule},
		})
	}
	return result, err
}

// fireAction invokes rule's handler for kind if one is declared; a
// missing handler is not an error (§4.2: at most one handler per kind,
// none required).
func (e *Engine) fireAction(rule *compiler.Rule, kind compiler.ActionKind, inst *Instance, line string) {
	handler, ok := rule.Actions[kind]
	if !ok {
		return
	}
	var vars map[string]interface{}
	var startLine int64
	if inst != nil {
		vars, startLine = inst.Vars, inst.StartLine
	} else {
		vars, startLine = map[string]interface{}{}, e.lineID
	}
	_ = handler
	e.invoke(actionName(rule.Name, kind), rule.Name, vars, startLine, line)
}

func (e *Engine) evalMatchClause(inst *Instance, idx int, m *compiler.MatchClause, line string) (bool, []string) {
	return e.evalClauseWithVars(inst.Rule, idx, m, line, inst.Vars, inst.StartLine)
}

// evalClauseWithVars evaluates one match clause against line: a code
// clause is invoked through the action host and its boolean return
// value substitutes for a regex match (§4.2); a clause with runtime
// inserts is compiled ad hoc per call since its text depends on vars
// (§4.3); everything else goes through the shared regex cache.
func (e *Engine) evalClauseWithVars(rule *compiler.Rule, idx int, m *compiler.MatchClause, line string, vars map[string]interface{}, startLine int64) (bool, []string) {
	if m.IsCode {
		result, err := e.invoke(clauseName(rule.Name, idx), rule.Name, vars, startLine, line)
		if err != nil {
			return false, nil
		}
		ok, _ := result.(bool)
		return ok, nil
	}

	if len(m.RuntimeInserts) > 0 {
		pattern := withOptions(compiler.SpliceRuntimeInserts(m.ResolvedText, m.RuntimeInserts, func(name string) string {
			return stringVarFromMap(vars, name)
		}), m.RegexOptions)
		re, err := regexcache.CompileAdHoc(pattern)
		if err != nil {
			logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeRuntime, Message: "runtime-insert regex", Err: err, Fields: map[string]interface{}{"rule": rule.Name}})
			return false, nil
		}
		groups := re.FindStringSubmatch(line)
		if groups == nil {
			return false, nil
		}
		return true, groups
	}

	handle := e.matchHandles[m]
	return e.cache.Eval(handle, e.lineID, line)
}

// WriteBufferToStdout and WriteListToStdout are the only output-helper
// implementations the core owns directly (writing to stdout needs no
// external collaborator); file variants defer to the configured
// FileWriter, a no-op when none is set (§1).
func (e *Engine) WriteBufferToStdout() {
	fmt.Fprint(os.Stdout, e.buffer.String())
}

func (e *Engine) WriteListToStdout(items []string) {
	for _, s := range items {
		fmt.Fprintln(os.Stdout, s)
	}
}

func (e *Engine) WriteBufferToFiles() {
	if e.files == nil {
		return
	}
	if err := e.files.WriteBuffer(e.currentLogfile, e.buffer.String()); err != nil {
		logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeIO, Message: "write buffer to file", Err: err})
	}
}

func (e *Engine) WriteListToFiles(items []string) {
	if e.files == nil {
		return
	}
	if err := e.files.WriteList(e.currentLogfile, items); err != nil {
		logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeIO, Message: "write list to file", Err: err})
	}
}

func (e *Engine) WriteToBuffer(text string) { e.buffer.WriteString(text) }
func (e *Engine) ClearBuffer()              { e.buffer.Reset() }
