package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIDHasRandomSuffix(t *testing.T) {
	a, b := ClientID("doorbell"), ClientID("doorbell")
	assert.True(t, strings.HasPrefix(a, "doorbell-"))
	assert.Len(t, a, len("doorbell-")+8)
	assert.NotEqual(t, a, b)
}

func TestFakeClientRecordsPublishes(t *testing.T) {
	f := NewFakeClient()
	require.NoError(t, f.Publish(Message{Topic: "a", Payload: []byte("1")}))
	require.NoError(t, f.Publish(Message{Topic: "b", Payload: []byte("2"), QoS: 1}))

	got := f.Published()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Topic)
	assert.Equal(t, byte(1), got[1].QoS)

	f.Reset()
	assert.Empty(t, f.Published())
}

func TestFakeClientPublishError(t *testing.T) {
	f := NewFakeClient()
	f.PublishError = errors.New("broker gone")
	assert.EqualError(t, f.Publish(Message{Topic: "a"}), "broker gone")
	assert.Empty(t, f.Published())
}

func TestFakeClientDeliverAndLoopback(t *testing.T) {
	f := NewFakeClient()
	var got []string
	require.NoError(t, f.Subscribe("cmd", 1, func(m Message) { got = append(got, string(m.Payload)) }))

	qos, ok := f.Subscribed("cmd")
	assert.True(t, ok)
	assert.Equal(t, byte(1), qos)

	assert.True(t, f.Deliver("cmd", []byte("x")))
	assert.False(t, f.Deliver("other", []byte("y")))

	require.NoError(t, f.Publish(Message{Topic: "cmd", Payload: []byte("not echoed")}))
	f.Loopback = true
	require.NoError(t, f.Publish(Message{Topic: "cmd", Payload: []byte("echoed")}))

	assert.Equal(t, []string{"x", "echoed"}, got)
}

func TestFakeClientReconnectRunsHooks(t *testing.T) {
	f := NewFakeClient()
	calls := 0
	f.OnReconnect(func() { calls++ })

	f.SetConnected(false)
	assert.False(t, f.IsConnected())
	f.Reconnect()
	assert.True(t, f.IsConnected())
	assert.Equal(t, 1, calls)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}

var _ Client = (*FakeClient)(nil)
var _ Client = (*RealClient)(nil)
