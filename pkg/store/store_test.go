// logengine/pkg/store/store_test.go

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserOptionsSetGet(t *testing.T) {
	u := NewUserOptions()
	u.Set("host", "a")
	u.Set("HOST", "b")

	v, ok := u.Get("Host")
	assert.True(t, ok)
	assert.Equal(t, "b", v, "Get returns the most recently set value")

	all, ok := u.GetAll("host")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, all)
}

func TestUserOptionsGetMissing(t *testing.T) {
	u := NewUserOptions()
	v, ok := u.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestUserOptionsCheckAllQueried(t *testing.T) {
	u := NewUserOptions()
	u.Set("host", "a")
	u.Set("port", "8080")

	err := u.CheckAllQueried()
	assert.ErrorContains(t, err, "HOST")
	assert.ErrorContains(t, err, "PORT")

	u.Get("host")
	u.GetAll("port")
	assert.NoError(t, u.CheckAllQueried())
}
