// logengine/pkg/compiler/resolve.go
package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// rtvarPlaceholder is spliced into resolved clause text wherever a
// reference to an unbound runtime variable is found; its fixed,
// content-free shape keeps idempotent re-resolution trivial (§8 law 5)
// and gives the matching runtime an unambiguous substring to replace
// with the instance's current value before evaluating the clause.
const rtvarPlaceholder = "\x00RTVAR\x00"

// resolveCtx threads the pure accumulator described in §9: resolved
// text, the running open-paren count, and the extract/insert lists,
// across one clause's recursive macro/variable expansion.
type resolveCtx struct {
	rule       *Rule
	macros     map[string]*Macro
	out        strings.Builder
	openParens int
	extracts   []RuntimeExtract
	inserts    []RuntimeInsert
	expanding  map[string]bool
}

func newResolveCtx(rule *Rule, macros map[string]*Macro) *resolveCtx {
	return &resolveCtx{rule: rule, macros: macros, expanding: make(map[string]bool)}
}

// ResolveClauseText expands macro references, runtime-extract
// declarations ($$/@@), and runtime-insert substitutions in raw clause
// text, per §4.2. Every clause's regex is independent (capture groups
// are numbered per-clause, §3's "Runtime-Extract ... within the owning
// clause"), so each call starts a fresh paren counter at 0 rather than
// continuing the count of clauses resolved earlier in the same rule.
func ResolveClauseText(raw string, rule *Rule, macros map[string]*Macro) (string, []RuntimeExtract, []RuntimeInsert, error) {
	ctx := newResolveCtx(rule, macros)
	if err := ctx.resolve(raw); err != nil {
		return "", nil, nil, err
	}
	return ctx.out.String(), ctx.extracts, ctx.inserts, nil
}

func (ctx *resolveCtx) resolve(raw string) error {
	runes := []rune(raw)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == '\\':
			j := i
			for j < len(runes) && runes[j] == '\\' {
				j++
			}
			n := j - i
			ctx.out.WriteString(strings.Repeat(`\`, n))
			i = j
			escaped := n%2 == 1
			if escaped && i < len(runes) && isResolverSpecial(runes[i]) {
				ctx.out.WriteRune(runes[i])
				i++
			}

		case c == '$':
			i++
			if i >= len(runes) {
				// a single trailing $ is a literal anchor (§4.2)
				ctx.out.WriteByte('$')
				continue
			}
			switch {
			case runes[i] == '$':
				i++
				name, next, ok := scanIdent(runes, i)
				if !ok {
					return fmt.Errorf("expected identifier after '$$'")
				}
				i = next
				if i >= len(runes) || runes[i] != '(' {
					return fmt.Errorf("expected '(' after $$%s", name)
				}
				group := ctx.openParens + 1
				if err := ctx.registerExtract(name, group, false); err != nil {
					return err
				}
				// the '(' itself is left in the stream to be consumed by
				// the ordinary '(' case below, which counts and emits it.
			case runes[i] == '{':
				i++
				name, next, ok := scanUntilBrace(runes, i)
				if !ok {
					return fmt.Errorf("unterminated ${...} reference")
				}
				i = next + 1
				if err := ctx.substituteName(name); err != nil {
					return err
				}
			default:
				name, next, ok := scanIdent(runes, i)
				if !ok {
					ctx.out.WriteByte('$')
					continue
				}
				i = next
				if err := ctx.substituteName(name); err != nil {
					return err
				}
			}

		case c == '@':
			if i+1 < len(runes) && runes[i+1] == '@' {
				i += 2
				name, next, ok := scanIdent(runes, i)
				if !ok {
					return fmt.Errorf("expected identifier after '@@'")
				}
				i = next
				if i >= len(runes) || runes[i] != '(' {
					return fmt.Errorf("expected '(' after @@%s", name)
				}
				group := ctx.openParens + 1
				if err := ctx.registerExtract(name, group, true); err != nil {
					return err
				}
			} else {
				ctx.out.WriteByte('@')
				i++
			}

		case c == '(':
			ctx.openParens++
			ctx.out.WriteByte('(')
			i++

		default:
			ctx.out.WriteRune(c)
			i++
		}
	}
	return nil
}

func isResolverSpecial(c rune) bool {
	return c == '$' || c == '@' || c == '('
}

func scanIdent(runes []rune, i int) (string, int, bool) {
	start := i
	for i < len(runes) && isIdentRune(runes[i]) {
		i++
	}
	if i == start {
		return "", i, false
	}
	return string(runes[start:i]), i, true
}

func isIdentRune(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func scanUntilBrace(runes []rune, i int) (string, int, bool) {
	start := i
	for i < len(runes) && runes[i] != '}' {
		i++
	}
	if i >= len(runes) {
		return "", i, false
	}
	return string(runes[start:i]), i, true
}

// registerExtract records a $$/@@ declaration: NAME becomes (or remains)
// a runtime variable owned by the rule, and the clause records a
// RuntimeExtract bound to the capture-group ordinal computed at the
// point of declaration (§3, §4.2).
func (ctx *resolveCtx) registerExtract(name string, group int, isArray bool) error {
	key := strings.ToUpper(name)
	if v, exists := ctx.rule.Vars[key]; exists {
		if !v.IsRuntime {
			return fmt.Errorf("variable %q already declared as a compile-time value", name)
		}
		if v.IsArray != isArray {
			return fmt.Errorf("variable %q redeclared with different array-ness", name)
		}
	} else {
		ctx.rule.Vars[key] = &RuleVariable{Name: name, CaptureGroup: group, IsArray: isArray, IsRuntime: true}
	}
	ctx.extracts = append(ctx.extracts, RuntimeExtract{VarName: key, Group: group, IsArray: isArray})
	return nil
}

// substituteName resolves a $NAME/${NAME} reference: a macro or
// compile-time rule variable is textually substituted (recursively
// resolved); a runtime rule variable becomes a placeholder + a
// RuntimeInsert (§4.2).
func (ctx *resolveCtx) substituteName(name string) error {
	key := strings.ToUpper(name)

	if v, ok := ctx.rule.Vars[key]; ok {
		if v.IsRuntime {
			offset := ctx.out.Len()
			ctx.out.WriteString(rtvarPlaceholder)
			ctx.inserts = append(ctx.inserts, RuntimeInsert{VarName: key, Offset: offset, Length: len(rtvarPlaceholder)})
			return nil
		}
		if ctx.expanding[key] {
			return fmt.Errorf("circular reference resolving %q", name)
		}
		ctx.expanding[key] = true
		err := ctx.resolve(v.Value)
		delete(ctx.expanding, key)
		return err
	}

	if m, ok := ctx.macros[key]; ok {
		if ctx.expanding[key] {
			return fmt.Errorf("circular reference resolving macro %q", name)
		}
		ctx.expanding[key] = true
		err := ctx.resolve(m.Raw)
		delete(ctx.expanding, key)
		return err
	}

	return fmt.Errorf("undefined macro or variable %q", name)
}

// SpliceRuntimeInserts substitutes every runtime-insert placeholder in
// text with the regex-quoted current value of its variable, as supplied
// by lookup. The matching runtime calls this once per instance per
// evaluation of a clause carrying runtime-inserts, since such a clause's
// final regex text is only known per-instance (§3, §4.2, §4.3).
// Replacements are applied from the last offset to the first so earlier
// recorded offsets stay valid as the text is rewritten.
func SpliceRuntimeInserts(text string, inserts []RuntimeInsert, lookup func(name string) string) string {
	if len(inserts) == 0 {
		return text
	}
	ordered := make([]RuntimeInsert, len(inserts))
	copy(ordered, inserts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Offset > ordered[j].Offset })

	b := []byte(text)
	for _, ins := range ordered {
		val := regexp.QuoteMeta(lookup(ins.VarName))
		b = append(b[:ins.Offset], append([]byte(val), b[ins.Offset+ins.Length:]...)...)
	}
	return string(b)
}
