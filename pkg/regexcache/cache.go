// logengine/pkg/regexcache/cache.go
package regexcache

import (
	"regexp"
	"sync"
)

// entry is one Regex Cache Entry (§3): a precompiled matcher shared by
// every clause whose fully-resolved regex text is identical, plus the
// single-line memoisation that lets a second clause hitting the same
// entry on the same line id reuse the first clause's captures without a
// second regex engine invocation (§4.3, law 6).
type entry struct {
	re           *regexp.Regexp
	refcount     int
	lastLineID   int64
	lastCaptures []string
	lastMatched  bool
}

// Cache deduplicates identical resolved regex texts across every match
// clause in a Ruleset and memoises the most recent evaluation per entry.
// It is read-mostly and single-threaded per the per-line loop (§5), but
// guards its map since compilation and matching may run from different
// goroutines in tests.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty regex cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Handle identifies one cache entry; obtained from Compile and passed to
// Eval. It is a plain string (the cache key) so callers can store it
// directly on a compiled clause without importing this package's types.
type Handle = string

// Compile registers text (which may already carry a regex options prefix
// added by the caller, e.g. an inline-flag group such as "(?i)") under
// itself as the cache key,
// compiling it once and sharing the result across every other clause
// that resolves to the same text. A clause with any runtime-insert is
// never handed to Compile — its final text is only known per-instance
// (§4.3) — callers compile those ad hoc instead via CompileAdHoc.
func (c *Cache) Compile(text string) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[text]; ok {
		e.refcount++
		return text, nil
	}

	re, err := regexp.Compile(text)
	if err != nil {
		return "", err
	}
	c.entries[text] = &entry{re: re, refcount: 1, lastLineID: -1}
	return text, nil
}

// CompileAdHoc compiles text without sharing it in the cache, for
// clauses whose text depends on a per-instance runtime-insert
// substitution and therefore cannot be deduplicated across instances.
func CompileAdHoc(text string) (*regexp.Regexp, error) {
	return regexp.Compile(text)
}

// Eval matches the cached regex for handle against line, memoising the
// result under lineID. A second call for the same handle and lineID
// returns the memoised result instead of invoking the regex engine again
// (§4.3, law 6) — this is what lets two clauses in different rules that
// happen to share a resolved regex text avoid redundant work on a line
// both are evaluated against.
func (c *Cache) Eval(handle Handle, lineID int64, line string) (matched bool, captures []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[handle]
	if !ok {
		return false, nil
	}
	if e.lastLineID == lineID {
		return e.lastMatched, e.lastCaptures
	}

	groups := e.re.FindStringSubmatch(line)
	e.lastLineID = lineID
	if groups == nil {
		e.lastMatched = false
		e.lastCaptures = nil
		return false, nil
	}
	e.lastMatched = true
	e.lastCaptures = groups
	return true, groups
}

// Len reports the number of distinct regex texts currently cached, for
// diagnostics (`-dump`, `-status`).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
