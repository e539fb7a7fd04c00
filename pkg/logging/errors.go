// logengine/pkg/logging/errors.go

package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ErrorType classifies a failure per the taxonomy of the error-handling
// design: configuration errors are fatal before the run loop starts,
// script errors abort compilation but let processing continue to gather
// more of them, compile errors concern a single action body, runtime
// errors are logged and processing continues, and I/O errors are logged
// and the offending file is skipped.
type ErrorType string

const (
	ErrorTypeConfig  ErrorType = "CONFIG"
	ErrorTypeScript  ErrorType = "SCRIPT"
	ErrorTypeCompile ErrorType = "COMPILE"
	ErrorTypeRuntime ErrorType = "RUNTIME"
	ErrorTypeIO      ErrorType = "IO"
)

// EngineError is the structured error carried by every subsystem; it
// keeps a type for the taxonomy plus arbitrary contextual fields so
// LogError can emit them without the caller formatting strings by hand.
type EngineError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *EngineError {
	return &EngineError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

func LogError(logger zerolog.Logger, err error) {
	engErr, ok := err.(*EngineError)
	if !ok {
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	event := logger.Error().Err(engErr.Err).
		Str("error_type", string(engErr.Type)).
		Str("message", engErr.Message)

	for k, v := range engErr.Fields {
		event = event.Interface(k, v)
	}

	event.Msg(engErr.Message)
}

// ScriptError is the dedicated format for §4.2's compile-time failure
// surface: "E: <file>:<line>: <rule>: <clause>[idx]: <message>". Rule
// and Clause are omitted from the message when empty (Index is printed
// only together with Clause) so the same type also serves the Script
// Loader's coarser file+line errors.
type ScriptError struct {
	File    string
	Line    int
	Rule    string
	Clause  string
	Index   int
	Message string
}

func (e *ScriptError) Error() string {
	loc := fmt.Sprintf("%s:%d", e.File, e.Line)
	if e.Rule == "" {
		return fmt.Sprintf("E: %s: %s", loc, e.Message)
	}
	if e.Clause == "" {
		return fmt.Sprintf("E: %s: %s: %s", loc, e.Rule, e.Message)
	}
	return fmt.Sprintf("E: %s: %s: %s[%d]: %s", loc, e.Rule, e.Clause, e.Index, e.Message)
}
