// logengine/cmd/logengine/main.go

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"logengine/pkg/compiler"
	"logengine/pkg/config"
	"logengine/pkg/logging"
	"logengine/pkg/runtime"
	"logengine/pkg/script"
	"logengine/pkg/store"
)

// Exit codes per §6.
const (
	exitSuccess       = 0
	exitHelp          = 1
	exitInvalidSwitch = 2
	exitParseError    = 3
	exitBadArgs       = 4
	exitNoScripts     = 5
	exitScriptError   = 6
	exitGeneralError  = 7
)

const version = "logengine 1.0"

const usageText = `logengine: streaming log-analysis engine

  -rules <path>          rule script source (repeatable)
  -stdin                 read a rule script from stdin
  -logfile <path>        log source (repeatable); a bare "-" reads stdin
  -forever | -nofforever keep a log handle open and re-poll for new lines
  -sort asc|desc|none    order a logfile glob's matches (applies to the
                          next -logfile)
  -status <N>            N > 0 prints the end-of-run summary (no
                          per-line status output)
  -study <N>             accepted; the value is not used
  -buffer <KB>            accepted; the value is not used
  -fast | -nofast        fast-mode single-line rule completion (§9)
  -dump                  print rule/regex-cache diagnostics before running
  -verbose               info-level logging
  -debug                 debug-level logging
  -title                 print the version banner before running
  -version               print the version banner and exit
  -man                   print this usage text and exit
  -help | -? | -usage    print this usage text and exit
  -user name=value       set a user option (repeatable per name)
`

// cliError carries the exit code a parse failure should produce (§6).
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func newCliErr(code int, format string, args ...interface{}) *cliError {
	return &cliError{code: code, err: fmt.Errorf(format, args...)}
}

// LogSource is one `-logfile` or bare `-` entry with the forever/sort
// modifiers active when it was declared -- those switches are "applied
// to the next logfile expansion" (§6), not global.
type LogSource struct {
	Path    string
	Stdin   bool
	Forever bool
	Sort    string
}

// Config is the fully parsed CLI surface of §6.
type Config struct {
	RuleFiles   []string
	StdinScript bool

	Logs []LogSource

	StatusInterval int
	StudyInterval  int
	BufferKB       int
	Fast           bool
	Dump           bool
	Verbose        bool
	Debug          bool
	ShowTitle      bool
	ShowVersion    bool
	ShowMan        bool
	ShowHelp       bool

	UserOpts [][2]string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout))
}

// run is the testable entrypoint: parse, compile, execute, report.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	defaults, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitGeneralError
	}

	cfg, err := parseArgs(args, defaults)
	if err != nil {
		var ce *cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			return ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitParseError
	}

	if cfg.ShowHelp || cfg.ShowMan {
		fmt.Fprint(stdout, usageText)
		if cfg.ShowHelp {
			return exitHelp
		}
		return exitSuccess
	}
	if cfg.ShowVersion {
		fmt.Fprintln(stdout, version)
		return exitSuccess
	}
	if cfg.ShowTitle {
		fmt.Fprintln(stdout, version)
	}

	level := defaults.LogLevel
	if cfg.Debug {
		level = "debug"
	} else if cfg.Verbose {
		level = "info"
	}
	if err := logging.ConfigureLogger(level, defaults.LogOutput, 0); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitGeneralError
	}

	if len(cfg.RuleFiles) == 0 && !cfg.StdinScript {
		fmt.Fprintln(os.Stderr, "no script sources given (-rules or -stdin)")
		return exitNoScripts
	}

	doc, err := loadScripts(cfg, stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitScriptError
	}

	rs, err := compiler.Compile(doc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitScriptError
	}

	opts := store.NewUserOptions()
	for _, kv := range cfg.UserOpts {
		opts.Set(kv[0], kv[1])
	}

	engine := runtime.NewEngine(opts, cfg.Fast)
	engine.SetFileWriter(logFileWriter{})
	if err := engine.Load(rs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitScriptError
	}

	if cfg.Dump {
		fmt.Fprintf(stdout, "rules=%d regex_cache=%d\n", len(rs.Rules), engine.RegexCacheLen())
	}

	if len(cfg.Logs) == 0 {
		fmt.Fprintln(os.Stderr, "no log sources given (-logfile or -)")
		return exitBadArgs
	}

	if err := runLogs(ctx, engine, cfg, stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitGeneralError
	}

	summary := engine.EndOfStream()
	if cfg.StatusInterval > 0 || cfg.Dump {
		printSummary(stdout, summary)
	}

	return exitSuccess
}

// parseArgs hand-walks the §6 switch grammar: every switch is matched
// case-insensitively with a leading "-"/"--" stripped, since `flag`'s
// single-dash-only, no-repeat model can't express repeatable `-rules`/
// `-user` entries or the forever/sort "applies to the next -logfile"
// state without a custom flag.Value for every switch.
func parseArgs(args []string, defaults *config.Defaults) (*Config, error) {
	cfg := &Config{
		StatusInterval: defaults.StatusInterval,
		StudyInterval:  defaults.StudyInterval,
		BufferKB:       defaults.BufferKB,
		Fast:           defaults.Fast,
	}

	currentForever := false
	currentSort := defaults.Sort

	next := func(i *int, flagName string) (string, error) {
		*i++
		if *i >= len(args) {
			return "", newCliErr(exitBadArgs, "missing argument for -%s", flagName)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		raw := args[i]
		name := strings.ToLower(strings.TrimLeft(raw, "-"))

		switch name {
		case "":
			// a bare "-" is a logfile source meaning "read from stdin".
			cfg.Logs = append(cfg.Logs, LogSource{Stdin: true, Forever: currentForever, Sort: currentSort})
		case "rules":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			cfg.RuleFiles = append(cfg.RuleFiles, v)
		case "stdin":
			cfg.StdinScript = true
		case "logfile":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			cfg.Logs = append(cfg.Logs, LogSource{Path: v, Forever: currentForever, Sort: currentSort})
		case "forever":
			currentForever = true
		case "nofforever", "noforever":
			currentForever = false
		case "sort":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			v = strings.ToLower(v)
			if v != "asc" && v != "desc" && v != "none" {
				return nil, newCliErr(exitInvalidSwitch, "invalid -sort value %q", v)
			}
			currentSort = v
		case "status":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			n, perr := strconv.Atoi(v)
			if perr != nil {
				return nil, newCliErr(exitBadArgs, "invalid -status value %q", v)
			}
			cfg.StatusInterval = n
		case "study":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			n, perr := strconv.Atoi(v)
			if perr != nil {
				return nil, newCliErr(exitBadArgs, "invalid -study value %q", v)
			}
			cfg.StudyInterval = n
		case "buffer":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			n, perr := strconv.Atoi(v)
			if perr != nil {
				return nil, newCliErr(exitBadArgs, "invalid -buffer value %q", v)
			}
			cfg.BufferKB = n
		case "fast":
			cfg.Fast = true
		case "nofast":
			cfg.Fast = false
		case "dump":
			cfg.Dump = true
		case "verbose":
			cfg.Verbose = true
		case "debug":
			cfg.Debug = true
		case "title":
			cfg.ShowTitle = true
		case "version":
			cfg.ShowVersion = true
		case "man":
			cfg.ShowMan = true
		case "help", "?", "usage":
			cfg.ShowHelp = true
		case "user":
			v, err := next(&i, name)
			if err != nil {
				return nil, err
			}
			k, val, ok := strings.Cut(v, "=")
			if !ok {
				return nil, newCliErr(exitBadArgs, "invalid -user value %q, want name=value", v)
			}
			cfg.UserOpts = append(cfg.UserOpts, [2]string{k, val})
		default:
			return nil, newCliErr(exitInvalidSwitch, "unrecognized switch %q", raw)
		}
	}

	return cfg, nil
}

// loadScripts loads every `-rules` source and the optional `-stdin`
// source, merging them into a single Document (§4.1's "one-shot,
// processed-flag" script record applies per source).
func loadScripts(cfg *Config, stdin io.Reader) (*script.Document, error) {
	var doc *script.Document

	merge := func(d *script.Document) error {
		if doc == nil {
			doc = d
			return nil
		}
		return d.MergeInto(doc)
	}

	for _, path := range cfg.RuleFiles {
		d, err := script.Load(path)
		if err != nil {
			return nil, err
		}
		if err := merge(d); err != nil {
			return nil, err
		}
	}

	if cfg.StdinScript {
		d, err := script.LoadStdin("-stdin", stdin)
		if err != nil {
			return nil, err
		}
		if err := merge(d); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// runLogs streams every configured log source through engine in order,
// expanding `-logfile` globs and applying -sort, and stopping early once
// the engine reports Done() or ctx is cancelled (Ctrl-C).
func runLogs(ctx context.Context, engine *runtime.Engine, cfg *Config, stdin io.Reader) error {
	for _, src := range cfg.Logs {
		if engine.Done() || ctxDone(ctx) {
			return nil
		}

		if src.Stdin {
			if err := streamReader(ctx, engine, "-", stdin, src.Forever); err != nil {
				logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeIO, Message: "stdin log", Err: err})
			}
			continue
		}

		paths, err := filepath.Glob(src.Path)
		if err != nil || len(paths) == 0 {
			paths = []string{src.Path}
		}
		sortPaths(paths, src.Sort)

		for _, p := range paths {
			if engine.Done() || ctxDone(ctx) {
				return nil
			}
			if err := streamFile(ctx, engine, p, src.Forever); err != nil {
				logging.LogError(logging.Logger, &logging.EngineError{Type: logging.ErrorTypeIO, Message: "log file " + p, Err: err})
			}
		}
	}
	return nil
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func streamFile(ctx context.Context, engine *runtime.Engine, path string, forever bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return streamReader(ctx, engine, path, f, forever)
}

// streamReader feeds r's lines through engine one at a time. When
// forever is set (the `-forever` tail switch), EOF re-polls instead of
// returning, matching §5's "re-polls for readability" keep-open handle;
// on an *os.File this works because the scanner's read offset persists
// across rebuilds and further writes simply extend the file.
func streamReader(ctx context.Context, engine *runtime.Engine, name string, r io.Reader, forever bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		for scanner.Scan() {
			if err := engine.ProcessLine(name, scanner.Text()); err != nil {
				return err
			}
			if engine.Done() || ctxDone(ctx) {
				return nil
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if !forever {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
		scanner = bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	}
}

func sortPaths(paths []string, mode string) {
	switch mode {
	case "asc":
		sort.Strings(paths)
	case "desc":
		sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	}
}

func printSummary(w io.Writer, s runtime.Summary) {
	fmt.Fprintf(w, "created=%d completed=%d destroyed=%d incomplete=%d missing=%d match_timeouts=%d timeouts=%d\n",
		s.Created, s.Completed, s.Destroyed, s.Incomplete, s.Missing, s.MatchTimeouts, s.Timeouts)
}
