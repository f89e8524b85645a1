package v1_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-ai/lumina/app/core"
	v1 "github.com/lumina-ai/lumina/app/logic/v1"
	"github.com/lumina-ai/lumina/pkg/broadcast"
	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/kv/memkv"
	"github.com/lumina-ai/lumina/pkg/types"
)

func Test_Settings(t *testing.T) {
	logic := v1.NewStorageLogic(ctx, newTestCore(t))

	require.NoError(t, logic.PutSetting("theme", []byte(`{"mode":"dark"}`)))

	got, err := logic.GetSetting("theme")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"dark"}`, string(got.Value))
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, logic.PutSetting("theme", []byte(`{"mode":"light"}`)))
	got, err = logic.GetSetting("theme")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"light"}`, string(got.Value))

	require.NoError(t, logic.DeleteSetting("theme"))
	_, err = logic.GetSetting("theme")
	assert.True(t, errors.IsNotFound(err))
}

func Test_StorageEstimateNeverFails(t *testing.T) {
	db := memkv.NewStore(memkv.WithMaxBytes(1024))
	c := newTestCore(t, core.WithStore(db))
	logic := v1.NewStorageLogic(ctx, c)

	usage := logic.StorageEstimate()
	assert.EqualValues(t, 1024, usage.Quota)

	require.NoError(t, logic.PutSetting("k", []byte(`"v"`)))
	usage = logic.StorageEstimate()
	assert.Greater(t, usage.Usage, int64(0))
	assert.Greater(t, usage.UsedPercent, float64(0))
}

func Test_ClearAll(t *testing.T) {
	c := newTestCore(t)
	assistants := v1.NewAssistantLogic(ctx, c)
	conversations := v1.NewConversationLogic(ctx, c)
	storage := v1.NewStorageLogic(ctx, c)

	saved, err := assistants.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)
	conv, err := conversations.SaveConversation(types.Conversation{AssistantID: saved.ID})
	require.NoError(t, err)
	require.NoError(t, storage.PutSetting("k", []byte(`"v"`)))

	// 先读一次填充缓存，清空后缓存也必须失效
	_, err = assistants.GetAssistant(saved.ID)
	require.NoError(t, err)

	require.NoError(t, storage.ClearAll())

	_, err = assistants.GetAssistant(saved.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = conversations.GetConversation(conv.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = storage.GetSetting("k")
	assert.True(t, errors.IsNotFound(err))
}

func Test_OnDataChange(t *testing.T) {
	c := newTestCore(t)
	logic := v1.NewAssistantLogic(ctx, c)

	var mu sync.Mutex
	var events []types.ChangeEvent
	unsubscribe := c.OnDataChange(func(event types.ChangeEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	saved, err := logic.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, events, 1)
	assert.Equal(t, types.TABLE_ASSISTANT, events[0].Table)
	assert.Equal(t, types.CHANGE_ACTION_CREATE, events[0].Action)
	assert.Equal(t, saved.ID, events[0].ID)
	mu.Unlock()

	// 取消订阅后不再收到通知，重复取消无副作用
	unsubscribe()
	unsubscribe()

	_, err = logic.SaveAssistant(*saved)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, events, 1)
	mu.Unlock()
}

func Test_CrossInstanceCacheInvalidation(t *testing.T) {
	hub := broadcast.NewHub()
	db := memkv.NewStore()

	// 两个执行实例共享同一份底层存储，通过广播互相失效缓存
	first := newTestCore(t, core.WithStore(db), core.WithBroadcaster(hub.Channel()))
	second := newTestCore(t, core.WithStore(db), core.WithBroadcaster(hub.Channel()))

	saved, err := v1.NewAssistantLogic(ctx, first).SaveAssistant(types.Assistant{Name: "before"})
	require.NoError(t, err)

	got, err := v1.NewAssistantLogic(ctx, second).GetAssistant(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)

	var remote []types.ChangeEvent
	var mu sync.Mutex
	second.OnDataChange(func(event types.ChangeEvent) {
		mu.Lock()
		remote = append(remote, event)
		mu.Unlock()
	})

	saved.Name = "after"
	_, err = v1.NewAssistantLogic(ctx, first).SaveAssistant(*saved)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(remote) == 1
	}, time.Second, 5*time.Millisecond)

	got, err = v1.NewAssistantLogic(ctx, second).GetAssistant(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
}

func Test_BroadcastDoesNotEchoToSender(t *testing.T) {
	hub := broadcast.NewHub()
	c := newTestCore(t, core.WithBroadcaster(hub.Channel()))
	other := hub.Channel()
	t.Cleanup(func() { other.Close() })

	received := 0
	var mu sync.Mutex
	c.OnDataChange(func(event types.ChangeEvent) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	_, err := v1.NewAssistantLogic(ctx, c).SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// 本地回调只来自 NotifyChange，广播不回投给发送方
	mu.Lock()
	assert.Equal(t, 1, received)
	mu.Unlock()
}
