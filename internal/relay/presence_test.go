package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceFollowsRegistry(t *testing.T) {
	h := NewHub()
	assert.Empty(t, h.ListOnline())
	assert.False(t, h.IsOnline("alice"))

	phone, _ := connect(t, h, "alice")
	laptop, _ := connect(t, h, "alice")
	bob, _ := connect(t, h, "bob")

	assert.True(t, h.IsOnline("alice"))
	assert.Equal(t, []string{"alice", "bob"}, h.ListOnline())

	h.Unregister(phone)
	assert.True(t, h.IsOnline("alice"), "another connection keeps alice online")

	h.Unregister(laptop)
	assert.False(t, h.IsOnline("alice"))
	assert.Equal(t, []string{"bob"}, h.ListOnline())

	h.Unregister(bob)
	assert.Empty(t, h.ListOnline())
}
