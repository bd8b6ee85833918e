package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectWithoutBroker(t *testing.T) {
	m := New()
	require.NoError(t, m.Connect("", "dqlog"))
	assert.False(t, m.Enabled())
	assert.NoError(t, m.Disconnect())
	assert.NoError(t, m.Disconnect())
}

func TestPublishDropsWhenFull(t *testing.T) {
	m := New()
	for i := 0; i < queueSize; i++ {
		require.True(t, m.Publish(Message{Topic: "dqlog/140203"}))
	}

	assert.False(t, m.Publish(Message{Topic: "dqlog/140203"}))
	assert.Equal(t, uint64(1), m.Dropped())
}

func TestServiceStopsOnDisconnect(t *testing.T) {
	m := New()
	done := make(chan struct{})
	go func() {
		m.Service()
		close(done)
	}()

	m.Publish(Message{Topic: "dqlog/140203", Payload: []byte("{}")})
	require.NoError(t, m.Disconnect())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service did not return after disconnect")
	}
}

func TestPublishAfterDisconnect(t *testing.T) {
	m := New()
	require.NoError(t, m.Disconnect())
	assert.False(t, m.Publish(Message{Topic: "dqlog/140203"}))
}
