// logengine/pkg/script/loader.go
package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"logengine/pkg/logging"
)

// RawEntry is one lvalue=rvalue line inside a section, with its source
// location preserved for the compiler's error messages (§4.2).
type RawEntry struct {
	LValue string
	RValue string
	File   string
	Line   int
}

// RawSection is one [NAME] block as read from a script file, before the
// compiler classifies and resolves it (§4.1).
type RawSection struct {
	Name    string
	Entries []RawEntry
	File    string
	Line    int
}

// Document is the aggregate of every section loaded from a script and
// all of its (transitively) included files.
type Document struct {
	Macros          []RawEntry
	SharedCode      []RawEntry
	TerminationCode []RawEntry
	Rules           []*RawSection

	ruleIndex    map[string]int  // upper-case rule name -> index into Rules
	macroNames   map[string]bool // upper-case macro name -> seen
	includedBase map[string]bool // basename of included files already processed
}

func newDocument() *Document {
	return &Document{
		ruleIndex:    make(map[string]int),
		macroNames:   make(map[string]bool),
		includedBase: make(map[string]bool),
	}
}

// Load reads a script file (and any files it transitively INCLUDEs) into
// a fresh Document.
func Load(path string) (*Document, error) {
	doc := newDocument()
	if err := doc.loadFile(path); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadStdin reads a script from r (the `-stdin` CLI source) into a fresh
// Document; name is used only for error reporting.
func LoadStdin(name string, r io.Reader) (*Document, error) {
	doc := newDocument()
	if err := doc.loadReader(name, r); err != nil {
		return nil, err
	}
	return doc, nil
}

// MergeInto folds a Document produced by a separate `-rules`/`-stdin`
// source into this one; duplicate rule/macro names across sources are
// still reported as script errors.
func (d *Document) MergeInto(into *Document) error {
	for _, e := range d.Macros {
		if err := into.addMacro(e); err != nil {
			return err
		}
	}
	into.SharedCode = append(into.SharedCode, d.SharedCode...)
	into.TerminationCode = append(into.TerminationCode, d.TerminationCode...)
	for _, r := range d.Rules {
		if err := into.addRuleSection(r); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) loadFile(path string) error {
	base := filepath.Base(path)
	if d.includedBase[base] {
		logging.Logger.Debug().Str("file", path).Msg("skipping already-included script")
		return nil
	}
	d.includedBase[base] = true

	f, err := os.Open(path)
	if err != nil {
		return &logging.ScriptError{File: path, Line: 0, Message: fmt.Sprintf("cannot open include: %v", err)}
	}
	defer f.Close()

	return d.loadReader(path, f)
}

func (d *Document) loadReader(file string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *RawSection
	var pendingText strings.Builder
	var pendingStartLine int
	lineNo := 0

	flush := func() error {
		if pendingText.Len() == 0 {
			return nil
		}
		text := pendingText.String()
		pendingText.Reset()
		return d.handleLogicalLine(file, pendingStartLine, text, &current)
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		rightTrimmed := strings.TrimRight(raw, " \t\r")
		continued := strings.HasSuffix(rightTrimmed, "\\")
		content := rightTrimmed
		if continued {
			content = rightTrimmed[:len(rightTrimmed)-1]
		}
		content = stripComment(content)
		content = strings.TrimSpace(content)

		if pendingText.Len() == 0 {
			pendingStartLine = lineNo
		}
		if content != "" {
			if pendingText.Len() > 0 {
				pendingText.WriteByte(' ')
			}
			pendingText.WriteString(content)
		}

		if !continued {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &logging.ScriptError{File: file, Line: lineNo, Message: fmt.Sprintf("read error: %v", err)}
	}
	if err := flush(); err != nil {
		return err
	}

	if err := d.closeSection(current); err != nil {
		return err
	}

	return nil
}

// stripComment truncates content at the first unescaped '#' or ';'.
func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '#' || c == ';' {
			if i > 0 && s[i-1] == '\\' {
				continue
			}
			return s[:i]
		}
	}
	return s
}

func (d *Document) handleLogicalLine(file string, line int, text string, current **RawSection) error {
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "[") {
		if !strings.HasSuffix(text, "]") {
			return &logging.ScriptError{File: file, Line: line, Message: "malformed section header"}
		}
		name := strings.TrimSpace(text[1 : len(text)-1])
		if name == "" {
			return &logging.ScriptError{File: file, Line: line, Message: "empty section name"}
		}
		if err := d.closeSection(*current); err != nil {
			return err
		}
		*current = &RawSection{Name: strings.ToUpper(name), File: file, Line: line}
		return nil
	}

	lv, rv, ok := splitAssignment(text)
	if !ok {
		return &logging.ScriptError{File: file, Line: line, Message: fmt.Sprintf("malformed line: %q", text)}
	}
	entry := RawEntry{LValue: strings.ToUpper(strings.TrimSpace(lv)), RValue: strings.TrimSpace(rv), File: file, Line: line}

	if entry.LValue == "INCLUDE" {
		return d.loadFile(entry.RValue)
	}

	if *current == nil {
		return &logging.ScriptError{File: file, Line: line, Message: "entry outside of any section"}
	}
	(*current).Entries = append((*current).Entries, entry)
	return nil
}

func splitAssignment(s string) (lvalue, rvalue string, ok bool) {
	idx := strings.Index(s, "=")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// closeSection files the just-finished section into the document's
// macro/shared/termination/rule buckets, checking for duplicates.
func (d *Document) closeSection(sec *RawSection) error {
	if sec == nil {
		return nil
	}
	switch sec.Name {
	case "DEFINE_MACRO":
		for _, e := range sec.Entries {
			if err := d.addMacro(e); err != nil {
				return err
			}
		}
	case "SHARED_CODE":
		d.SharedCode = append(d.SharedCode, sec.Entries...)
	case "TERMINATION_CODE":
		d.TerminationCode = append(d.TerminationCode, sec.Entries...)
	default:
		if err := d.addRuleSection(sec); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) addMacro(e RawEntry) error {
	key := strings.ToUpper(e.LValue)
	if d.macroNames[key] {
		return &logging.ScriptError{File: e.File, Line: e.Line, Message: fmt.Sprintf("duplicate macro %q", e.LValue)}
	}
	d.macroNames[key] = true
	d.Macros = append(d.Macros, e)
	return nil
}

func (d *Document) addRuleSection(sec *RawSection) error {
	key := strings.ToUpper(sec.Name)
	if _, exists := d.ruleIndex[key]; exists {
		return &logging.ScriptError{File: sec.File, Line: sec.Line, Message: fmt.Sprintf("duplicate rule %q", sec.Name)}
	}
	d.ruleIndex[key] = len(d.Rules)
	d.Rules = append(d.Rules, sec)
	return nil
}
