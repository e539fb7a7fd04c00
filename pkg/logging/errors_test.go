// logengine/pkg/logging/errors_test.go

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name        string
		errType     ErrorType
		message     string
		err         error
		fields      map[string]interface{}
		expectedMsg string
	}{
		{
			name:        "script error",
			errType:     ErrorTypeScript,
			message:     "duplicate rule",
			err:         errors.New("syntax error"),
			fields:      map[string]interface{}{"line": 10},
			expectedMsg: "SCRIPT: duplicate rule",
		},
		{
			name:        "compile error",
			errType:     ErrorTypeCompile,
			message:     "failed to compile action",
			err:         nil,
			fields:      nil,
			expectedMsg: "COMPILE: failed to compile action",
		},
		{
			name:        "runtime error",
			errType:     ErrorTypeRuntime,
			message:     "runtime error occurred",
			err:         errors.New("nil instance"),
			fields:      map[string]interface{}{"rule": "ABR"},
			expectedMsg: "RUNTIME: runtime error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engErr := NewError(tt.errType, tt.message, tt.err, tt.fields)

			assert.Equal(t, tt.errType, engErr.Type)
			assert.Equal(t, tt.message, engErr.Message)
			assert.Equal(t, tt.err, engErr.Err)
			assert.Equal(t, tt.fields, engErr.Fields)
			assert.Equal(t, tt.expectedMsg, engErr.Error())

			if tt.err != nil {
				assert.Equal(t, tt.err, engErr.Unwrap())
			} else {
				assert.Nil(t, engErr.Unwrap())
			}
		})
	}
}

func TestLogError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected map[string]interface{}
	}{
		{
			name: "EngineError with all fields",
			err: &EngineError{
				Type:    ErrorTypeRuntime,
				Message: "test error",
				Err:     errors.New("underlying error"),
				Fields: map[string]interface{}{
					"key1": "value1",
					"key2": 42,
				},
			},
			expected: map[string]interface{}{
				"error":      "underlying error",
				"error_type": "RUNTIME",
				"message":    "test error",
				"key1":       "value1",
				"key2":       float64(42),
				"level":      "error",
			},
		},
		{
			name: "EngineError without underlying error",
			err: &EngineError{
				Type:    ErrorTypeScript,
				Message: "script error",
				Fields: map[string]interface{}{
					"line": 10,
				},
			},
			expected: map[string]interface{}{
				"error_type": "SCRIPT",
				"message":    "script error",
				"line":       float64(10),
				"level":      "error",
			},
		},
		{
			name: "Standard error",
			err:  errors.New("standard error"),
			expected: map[string]interface{}{
				"error":   "standard error",
				"message": "standard error",
				"level":   "error",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mockLogger := zerolog.New(&buf)

			LogError(mockLogger, tt.err)

			var logged map[string]interface{}
			err := json.Unmarshal(buf.Bytes(), &logged)
			assert.NoError(t, err)

			for k, v := range tt.expected {
				assert.Equal(t, v, logged[k], "mismatch for key %s", k)
			}

			for k := range logged {
				_, expected := tt.expected[k]
				if !expected && k != "time" {
					t.Errorf("unexpected key in logged data: %s", k)
				}
			}
		})
	}
}

func TestScriptErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *ScriptError
		want string
	}{
		{
			name: "clause-level error",
			err:  &ScriptError{File: "rules.conf", Line: 42, Rule: "LOGIN_FAIL", Clause: "BEGIN", Index: 1, Message: "undefined macro FOO"},
			want: "E: rules.conf:42: LOGIN_FAIL: BEGIN[1]: undefined macro FOO",
		},
		{
			name: "rule-level error",
			err:  &ScriptError{File: "rules.conf", Line: 10, Rule: "LOGIN_FAIL", Message: "duplicate action CREATE"},
			want: "E: rules.conf:10: LOGIN_FAIL: duplicate action CREATE",
		},
		{
			name: "file-level error",
			err:  &ScriptError{File: "rules.conf", Line: 1, Message: "empty section name"},
			want: "E: rules.conf:1: empty section name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
