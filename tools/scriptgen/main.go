// logengine/tools/scriptgen/main.go

package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// words a generated rule's clauses are built from, grouped by the kind
// of log line they're meant to recognize -- standing in for the varied
// vocabularies (hostnames, process names, status words) a real fleet of
// log lines carries.
var vocab = map[string][]string{
	"start":  {"BOOT", "INIT", "STARTUP", "LAUNCH"},
	"middle": {"PROGRESS", "HEARTBEAT", "TICK", "RETRY"},
	"stop":   {"SHUTDOWN", "DONE", "COMPLETE", "HALT"},
}

// GeneratedRule is one synthetic rule's clause text, before it is
// rendered into the INI-like §4.1 grammar.
type GeneratedRule struct {
	Name        string
	HasPre      bool
	PreWord     string
	BeginWord   string
	HasAccum    bool
	AccumWord   string
	HasEnd      bool
	EndWord     string
	RuleTimeout int
}

func randomWord(kind string) string {
	words := vocab[kind]
	return words[rand.Intn(len(words))]
}

// generateRule builds one rule with a randomized clause shape: always a
// BEGIN, sometimes a leading PRE, sometimes a middle ACCUM, sometimes a
// trailing END -- the combinations §8's scenario set exercises.
func generateRule(index int) GeneratedRule {
	r := GeneratedRule{
		Name:      fmt.Sprintf("RULE_%d", index),
		BeginWord: randomWord("start") + "_" + strings.ToUpper(gofakeit.Word()),
	}

	if rand.Float32() < 0.4 {
		r.HasPre = true
		r.PreWord = fmt.Sprintf(`^\[%s\]`, strings.ToUpper(gofakeit.LetterN(4)))
	}

	if rand.Float32() < 0.3 {
		r.HasAccum = true
		r.AccumWord = randomWord("middle")
	}

	if rand.Float32() < 0.5 {
		r.HasEnd = true
		r.EndWord = randomWord("stop")
		if rand.Float32() < 0.3 {
			r.RuleTimeout = rand.Intn(60) + 1
		}
	}

	return r
}

// render writes rule's clauses in the §4.1 INI-like grammar: one
// `[NAME]` section with PRE/BEGIN/[BEGIN_ACCUM]/[END] lines and a
// COMPLETE action that appends to the shared write buffer.
func render(w *strings.Builder, rule GeneratedRule) {
	fmt.Fprintf(w, "[%s]\n", rule.Name)
	if rule.HasPre {
		fmt.Fprintf(w, "PRE=%s\n", rule.PreWord)
	}
	fmt.Fprintf(w, "BEGIN=%s\n", rule.BeginWord)
	if rule.HasAccum {
		fmt.Fprintf(w, "BEGIN_ACCUM=%s (\\S+)\n", rule.AccumWord)
	}
	if rule.HasEnd {
		fmt.Fprintf(w, "END=%s\n", rule.EndWord)
	}
	if rule.RuleTimeout > 0 {
		fmt.Fprintf(w, "RULE_TIMEOUT=%d\n", rule.RuleTimeout)
	}
	fmt.Fprintf(w, "ACTION.COMPLETE=WRITE_TO_BUFFER(%q);\n", rule.Name+" matched\\n")
	w.WriteByte('\n')
}

// generateScript renders count rules into one script document.
func generateScript(count int) string {
	var sb strings.Builder
	for i := 1; i <= count; i++ {
		render(&sb, generateRule(i))
	}
	return sb.String()
}

func parseFlags(args []string) (numRules int, outputFile string) {
	fs := flag.NewFlagSet("scriptgen", flag.ContinueOnError)
	n := fs.Int("rules", 1000, "number of rules to generate")
	out := fs.String("output", "generated_ruleset.script", "output script file path")
	fs.Parse(args)
	return *n, *out
}

func writeScriptToFile(script, path string) error {
	return os.WriteFile(path, []byte(script), 0o644)
}

func main() {
	numRules, outputFile := parseFlags(os.Args[1:])
	gofakeit.Seed(time.Now().UnixNano())

	script := generateScript(numRules)
	if err := writeScriptToFile(script, outputFile); err != nil {
		fmt.Printf("Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d rules. Saved to %s\n", numRules, outputFile)
}
