package websocket

import (
	"testing"

	"messenger/internal/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientWriteQueuesUntilFull(t *testing.T) {
	c := NewClient(relay.NewHub(), nil, "alice", "127.0.0.1:1", 2)

	require.NoError(t, c.Write([]byte("one")))
	require.NoError(t, c.Write([]byte("two")))
	assert.ErrorIs(t, c.Write([]byte("three")), ErrSendBufferFull)

	assert.Equal(t, "one", string(<-c.send))
	assert.Equal(t, "two", string(<-c.send))
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := NewClient(relay.NewHub(), nil, "alice", "127.0.0.1:1", 0)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Write([]byte("late")), ErrClientClosed)

	_, open := <-c.send
	assert.False(t, open)
}

func TestClientBindsConnection(t *testing.T) {
	c := NewClient(relay.NewHub(), nil, "alice", "127.0.0.1:1", 0)

	require.NotNil(t, c.Connection())
	assert.Equal(t, "alice", c.Connection().Username())
	assert.NotEmpty(t, c.Connection().ID())
}
