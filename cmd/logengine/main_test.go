// logengine/cmd/logengine/main_test.go

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logengine/pkg/config"
)

func defaults(t *testing.T) *config.Defaults {
	t.Helper()
	d, err := config.Load("")
	require.NoError(t, err)
	return d
}

func TestParseArgsBuildsRepeatableSources(t *testing.T) {
	cfg, err := parseArgs([]string{
		"-rules", "a.rules",
		"-rules", "b.rules",
		"-forever", "-sort", "asc", "-logfile", "x.log",
		"-noforever", "-logfile", "y.log",
		"-user", "ENV=prod",
		"-fast",
	}, defaults(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.rules", "b.rules"}, cfg.RuleFiles)
	require.Len(t, cfg.Logs, 2)
	assert.Equal(t, LogSource{Path: "x.log", Forever: true, Sort: "asc"}, cfg.Logs[0])
	assert.Equal(t, LogSource{Path: "y.log", Forever: false, Sort: "asc"}, cfg.Logs[1])
	assert.True(t, cfg.Fast)
	assert.Equal(t, [][2]string{{"ENV", "prod"}}, cfg.UserOpts)
}

func TestParseArgsRejectsUnknownSwitch(t *testing.T) {
	_, err := parseArgs([]string{"-bogus"}, defaults(t))
	require.Error(t, err)
	var ce *cliError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, exitInvalidSwitch, ce.code)
}

func TestParseArgsRejectsMissingArgument(t *testing.T) {
	_, err := parseArgs([]string{"-rules"}, defaults(t))
	require.Error(t, err)
	var ce *cliError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, exitBadArgs, ce.code)
}

func TestParseArgsRejectsMalformedUserOption(t *testing.T) {
	_, err := parseArgs([]string{"-user", "NOEQUALSSIGN"}, defaults(t))
	require.Error(t, err)
	var ce *cliError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, exitBadArgs, ce.code)
}

func TestRunNoScriptsExitsFive(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), []string{"-logfile", "x.log"}, strings.NewReader(""), &out)
	assert.Equal(t, exitNoScripts, code)
}

func TestRunHelpExitsOne(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), []string{"-help"}, strings.NewReader(""), &out)
	assert.Equal(t, exitHelp, code)
	assert.Contains(t, out.String(), "streaming log-analysis engine")
}

func TestRunVersionExitsZero(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), []string{"-version"}, strings.NewReader(""), &out)
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, out.String(), version)
}

// TestRunEndToEndCompletesOneRule exercises the full CLI path: a rule
// script and a log file on disk, compiled, run, and summarized.
func TestRunEndToEndCompletesOneRule(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "greet.rules")
	logPath := filepath.Join(dir, "input.log")

	require.NoError(t, os.WriteFile(rulesPath, []byte("[GREET]\nBEGIN=HELLO\n"), 0o644))
	require.NoError(t, os.WriteFile(logPath, []byte("HELLO world\n"), 0o644))

	var out bytes.Buffer
	code := run(context.Background(), []string{
		"-rules", rulesPath,
		"-logfile", logPath,
		"-fast", "-dump",
	}, strings.NewReader(""), &out)

	require.Equal(t, exitSuccess, code)
	assert.Contains(t, out.String(), "rules=1")
	assert.Contains(t, out.String(), "completed=1")
}

func TestRunInvalidSwitchExitsTwo(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), []string{"-bogus"}, strings.NewReader(""), &out)
	assert.Equal(t, exitInvalidSwitch, code)
}
