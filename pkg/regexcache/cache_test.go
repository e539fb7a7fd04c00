// logengine/pkg/regexcache/cache_test.go

package regexcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileDedupesIdenticalText(t *testing.T) {
	c := New()
	h1, err := c.Compile(`ABR (\S+)`)
	assert.NoError(t, err)
	h2, err := c.Compile(`ABR (\S+)`)
	assert.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, c.Len())
}

func TestCompileInvalidRegex(t *testing.T) {
	c := New()
	_, err := c.Compile(`(unclosed`)
	assert.Error(t, err)
}

func TestEvalMemoisesPerLine(t *testing.T) {
	c := New()
	h, err := c.Compile(`ABR (\S+)`)
	assert.NoError(t, err)

	matched, captures := c.Eval(h, 1, "ABR foo")
	assert.True(t, matched)
	assert.Equal(t, []string{"ABR foo", "foo"}, captures)

	// A second clause sharing the same handle on the same line id must
	// reuse the memoised result rather than re-running the regex (§4.3,
	// testable property 6) -- passing a line that would not match proves
	// the cached captures, not a fresh FindStringSubmatch, were returned.
	matched2, captures2 := c.Eval(h, 1, "this does not match at all")
	assert.True(t, matched2)
	assert.Equal(t, captures, captures2)
}

func TestEvalReevaluatesOnNewLineID(t *testing.T) {
	c := New()
	h, err := c.Compile(`ABR (\S+)`)
	assert.NoError(t, err)

	matched, _ := c.Eval(h, 1, "ABR foo")
	assert.True(t, matched)

	matched, _ = c.Eval(h, 2, "no match here")
	assert.False(t, matched)
}

func TestEvalUnknownHandle(t *testing.T) {
	c := New()
	matched, captures := c.Eval("never-compiled", 1, "anything")
	assert.False(t, matched)
	assert.Nil(t, captures)
}
