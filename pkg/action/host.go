// logengine/pkg/action/host.go
package action

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robertkrimen/otto"

	"logengine/pkg/logging"
)

// defaultTimeout bounds an action invocation when Invoke is given no
// positive timeout.
const defaultTimeout = 2 * time.Second

// Binding is the set of named locals and ambient fields the core supplies
// to a compiled action or code clause when invoking it (§6): the current
// instance's variables (arrays as ordered string sequences, scalars as
// strings) plus the line-number context.
type Binding struct {
	Vars             map[string]interface{}
	LineNumberStart  int
	LineNumberStop   int
	LineNumberRange  string
	LineLastRead     string
}

// Callbacks is implemented by the matching runtime so the action host's
// builtins (§6) can reach back into engine state without pkg/action
// importing pkg/runtime.
type Callbacks interface {
	GetUserOpt(name string) (string, bool)
	ResetRuleInstances(ruleName string)
	HasRuleEverMatched(ruleName string) bool
	GetLastRuleInst(ruleName string) (map[string]interface{}, bool)
	CompareRules(controller string, candidates []string) (string, bool)
	ImportInstVars(controller string, ruleName string) bool
	CompareRulesAndImport(controller string, candidates []string) (string, bool)
	ProcessingComplete()
	WriteToBuffer(text string)
	ClearBuffer()
	WriteBufferToFiles()
	WriteBufferToStdout()
	WriteListToFiles(items []string)
	WriteListToStdout(items []string)
}

// Host is the engine's action host: it compiles action/code-clause bodies
// into callables and invokes them with a per-call binding, per §6 and §9's
// "dynamic resolution of user code becomes an action host abstraction
// with two operations (compile, invoke)". Grounded on the teacher's
// pkg/scripting/safe_vm.go SafeVM, generalized so compile and invoke are
// the two boundary operations the spec names, and so builtins can see
// which rule is the current "controller" for cross-rule queries.
type Host struct {
	vm         *otto.Otto
	callables  map[string]string
	callbacks  Callbacks
	controller string
}

// NewHost builds an action host wired to cb for its builtins.
func NewHost(cb Callbacks) *Host {
	vm := otto.New()
	vm.Set("eval", otto.UndefinedValue())
	vm.Set("Function", otto.UndefinedValue())

	h := &Host{vm: vm, callables: make(map[string]string), callbacks: cb}
	h.registerBuiltins()
	return h
}

// Compile registers source under name without parsing it; every Invoke
// parses and evaluates it anew (matching the teacher's SetScript/RunScript
// split), so a syntax error is reported by Invoke, not here.
func (h *Host) Compile(name, source string) error {
	h.callables[name] = source
	return nil
}

// DeclareGlobal runs initializer once at load time, binding its result to
// name as a VM-global — used for SHARED_CODE entries.
func (h *Host) DeclareGlobal(name, initializer string) error {
	src := fmt.Sprintf("var %s = (function() { %s })();", name, initializer)
	if _, err := h.vm.Run(src); err != nil {
		return fmt.Errorf("declare_global %s: %w", name, err)
	}
	return nil
}

// Invoke runs the callable registered under name with binding as its
// scope, with controller set as the "current instance" for cross-rule
// builtins. timeout <= 0 falls back to defaultTimeout. Returns the
// exported JS return value (bool for code clauses, otherwise whatever the
// action returned, usually nil).
func (h *Host) Invoke(name string, binding Binding, controller string, timeout time.Duration) (interface{}, error) {
	body, ok := h.callables[name]
	if !ok {
		return nil, fmt.Errorf("action %q not compiled", name)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	h.controller = controller
	defer func() { h.controller = "" }()

	for k, v := range binding.Vars {
		h.vm.Set(k, v)
	}
	h.vm.Set("LINENUMBER_START", binding.LineNumberStart)
	h.vm.Set("LINENUMBER_STOP", binding.LineNumberStop)
	h.vm.Set("LINENUMBER_RANGE", binding.LineNumberRange)
	h.vm.Set("LINE_LASTREAD", binding.LineLastRead)

	funcDef := fmt.Sprintf("(function() { %s })", body)

	done := make(chan otto.Value, 1)
	errChan := make(chan error, 1)
	h.vm.Interrupt = make(chan func(), 1)
	defer func() { h.vm.Interrupt = nil }()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if r == "action execution timeout" {
					errChan <- fmt.Errorf("action execution timed out")
				} else {
					errChan <- fmt.Errorf("action panicked: %v", r)
				}
			}
		}()

		h.vm.SetStackDepthLimit(1000)

		fn, err := h.vm.Eval(funcDef)
		if err != nil {
			errChan <- fmt.Errorf("compiling action %q: %w", name, err)
			return
		}
		result, err := fn.Call(otto.NullValue())
		if err != nil {
			errChan <- err
			return
		}
		done <- result
	}()

	select {
	case v := <-done:
		exported, err := v.Export()
		if err != nil {
			return nil, fmt.Errorf("exporting result of %q: %w", name, err)
		}
		if f, ok := exported.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
			return nil, fmt.Errorf("action %q produced an invalid numeric result", name)
		}
		return exported, nil
	case err := <-errChan:
		return nil, err
	case <-time.After(timeout + 10*time.Millisecond):
		h.vm.Interrupt <- func() { panic("action execution timeout") }
		return nil, fmt.Errorf("action %q timed out", name)
	}
}

// Error reports a compile/runtime failure with source context, per §6's
// error(message) operation. It only logs: the failure is not fatal, and
// the offending action is not disabled, so it is invoked again the next
// time its event fires.
func (h *Host) Error(file string, line int, message string) {
	logging.LogError(logging.Logger, &logging.ScriptError{File: file, Line: line, Message: message})
}

func (h *Host) registerBuiltins() {
	h.vm.Set("LOGENGINE_GET_USER_OPT", func(call otto.FunctionCall) otto.Value {
		name := call.Argument(0).String()
		v, ok := h.callbacks.GetUserOpt(name)
		if !ok {
			return otto.UndefinedValue()
		}
		result, _ := h.vm.ToValue(v)
		return result
	})

	h.vm.Set("LOGENGINE_RESET_RULE_INSTANCES", func(call otto.FunctionCall) otto.Value {
		h.callbacks.ResetRuleInstances(call.Argument(0).String())
		return otto.UndefinedValue()
	})

	h.vm.Set("LOGENGINE_HAS_RULE_EVER_MATCHED", func(call otto.FunctionCall) otto.Value {
		result, _ := h.vm.ToValue(h.callbacks.HasRuleEverMatched(call.Argument(0).String()))
		return result
	})

	h.vm.Set("LOGENGINE_GET_LAST_RULE_INST", func(call otto.FunctionCall) otto.Value {
		vars, ok := h.callbacks.GetLastRuleInst(call.Argument(0).String())
		if !ok {
			return otto.UndefinedValue()
		}
		result, _ := h.vm.ToValue(vars)
		return result
	})

	h.vm.Set("LOGENGINE_COMPARE_RULES", func(call otto.FunctionCall) otto.Value {
		winner, ok := h.callbacks.CompareRules(h.controller, ruleNameArgs(call))
		if !ok {
			return otto.UndefinedValue()
		}
		result, _ := h.vm.ToValue(winner)
		return result
	})

	h.vm.Set("LOGENGINE_IMPORT_INST_VARS", func(call otto.FunctionCall) otto.Value {
		ok := h.callbacks.ImportInstVars(h.controller, call.Argument(0).String())
		result, _ := h.vm.ToValue(ok)
		return result
	})

	h.vm.Set("LOGENGINE_COMPARE_RULES_AND_IMPORT", func(call otto.FunctionCall) otto.Value {
		winner, ok := h.callbacks.CompareRulesAndImport(h.controller, ruleNameArgs(call))
		if !ok {
			return otto.UndefinedValue()
		}
		result, _ := h.vm.ToValue(winner)
		return result
	})

	h.vm.Set("LOGENGINE_PROCESSING_COMPLETE", func(call otto.FunctionCall) otto.Value {
		h.callbacks.ProcessingComplete()
		return otto.UndefinedValue()
	})

	h.vm.Set("WRITE_TO_BUFFER", func(call otto.FunctionCall) otto.Value {
		h.callbacks.WriteToBuffer(call.Argument(0).String())
		return otto.UndefinedValue()
	})
	h.vm.Set("CLEAR_BUFFER", func(call otto.FunctionCall) otto.Value {
		h.callbacks.ClearBuffer()
		return otto.UndefinedValue()
	})
	h.vm.Set("WRITE_BUFFER_TO_FILES", func(call otto.FunctionCall) otto.Value {
		h.callbacks.WriteBufferToFiles()
		return otto.UndefinedValue()
	})
	h.vm.Set("WRITE_BUFFER_TO_STDOUT", func(call otto.FunctionCall) otto.Value {
		h.callbacks.WriteBufferToStdout()
		return otto.UndefinedValue()
	})
	h.vm.Set("WRITE_LIST_TO_FILES", func(call otto.FunctionCall) otto.Value {
		h.callbacks.WriteListToFiles(stringArgs(call))
		return otto.UndefinedValue()
	})
	h.vm.Set("WRITE_LIST_TO_STDOUT", func(call otto.FunctionCall) otto.Value {
		h.callbacks.WriteListToStdout(stringArgs(call))
		return otto.UndefinedValue()
	})
	h.vm.Set("XLAT_AR_TO_STRING", func(call otto.FunctionCall) otto.Value {
		sep := ","
		if len(call.ArgumentList) > 1 {
			sep = call.Argument(1).String()
		}
		result, _ := h.vm.ToValue(strings.Join(stringArgs(call), sep))
		return result
	})
}

func ruleNameArgs(call otto.FunctionCall) []string {
	names := make([]string, 0, len(call.ArgumentList))
	for _, a := range call.ArgumentList {
		names = append(names, a.String())
	}
	return names
}

func stringArgs(call otto.FunctionCall) []string {
	arr := call.Argument(0)
	export, err := arr.Export()
	if err != nil {
		return nil
	}
	switch v := export.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, len(v))
		for i, e := range v {
			out[i] = fmt.Sprintf("%v", e)
		}
		return out
	default:
		return []string{arr.String()}
	}
}

