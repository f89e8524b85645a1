package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-ai/lumina/pkg/types"
)

func TestHub_PublishSkipsSender(t *testing.T) {
	hub := NewHub()
	a := hub.Channel()
	b := hub.Channel()
	defer a.Close()
	defer b.Close()

	var fromA, fromB []types.ChangeEvent
	a.Subscribe(func(event types.ChangeEvent) { fromA = append(fromA, event) })
	b.Subscribe(func(event types.ChangeEvent) { fromB = append(fromB, event) })

	event := types.ChangeEvent{
		Type:      types.CHANGE_EVENT_TYPE,
		Table:     types.TABLE_CONVERSATION,
		ID:        "c1",
		Action:    types.CHANGE_ACTION_UPDATE,
		Timestamp: time.Now().UnixMilli(),
	}
	a.Publish(context.Background(), event)

	// 发送方自身不收到消息
	assert.Empty(t, fromA)
	require.Len(t, fromB, 1)
	assert.Equal(t, "c1", fromB[0].ID)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	a := hub.Channel()
	b := hub.Channel()
	defer a.Close()
	defer b.Close()

	received := 0
	unsub := b.Subscribe(func(event types.ChangeEvent) { received++ })

	a.Publish(context.Background(), types.ChangeEvent{ID: "1"})
	unsub()
	a.Publish(context.Background(), types.ChangeEvent{ID: "2"})

	assert.Equal(t, 1, received)
}

func TestHub_ClosedMemberStopsReceiving(t *testing.T) {
	hub := NewHub()
	a := hub.Channel()
	b := hub.Channel()
	defer a.Close()

	received := 0
	b.Subscribe(func(event types.ChangeEvent) { received++ })
	require.NoError(t, b.Close())
	// Close 幂等
	require.NoError(t, b.Close())

	a.Publish(context.Background(), types.ChangeEvent{ID: "1"})
	assert.Equal(t, 0, received)
}

func TestNop_Degradation(t *testing.T) {
	n := NewNop()
	defer n.Close()

	// 广播机制不可用时所有操作静默成功
	unsub := n.Subscribe(func(event types.ChangeEvent) {
		t.Fatal("nop broadcaster must not deliver events")
	})
	n.Publish(context.Background(), types.ChangeEvent{ID: "1"})
	unsub()
	assert.NoError(t, n.Close())
}
