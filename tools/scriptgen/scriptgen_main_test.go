// logengine/tools/scriptgen/scriptgen_main_test.go

package main

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logengine/pkg/compiler"
	"logengine/pkg/script"
)

func TestParseFlagsDefaults(t *testing.T) {
	numRules, outputFile := parseFlags([]string{})
	assert.Equal(t, 1000, numRules)
	assert.Equal(t, "generated_ruleset.script", outputFile)
}

func TestParseFlagsCustom(t *testing.T) {
	numRules, outputFile := parseFlags([]string{"-rules", "25", "-output", "custom.script"})
	assert.Equal(t, 25, numRules)
	assert.Equal(t, "custom.script", outputFile)
}

func TestGenerateRuleAlwaysHasBegin(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := generateRule(i)
		assert.NotEmpty(t, r.BeginWord)
		assert.Equal(t, fmt.Sprintf("RULE_%d", i), r.Name)
	}
}

// TestGeneratedScriptCompiles feeds a small generated script through the
// real script loader and rule compiler, confirming scriptgen's output is
// always a structurally valid §4.1 document.
func TestGeneratedScriptCompiles(t *testing.T) {
	text := generateScript(30)

	doc, err := script.LoadStdin("generated", strings.NewReader(text))
	require.NoError(t, err)
	assert.Len(t, doc.Rules, 30)

	rs, err := compiler.Compile(doc)
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 30)
}

func TestWriteScriptToFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.script"

	require.NoError(t, writeScriptToFile("[A]\nBEGIN=X\n", path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[A]")
}
