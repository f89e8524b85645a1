package v1_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-ai/lumina/app/core"
	v1 "github.com/lumina-ai/lumina/app/logic/v1"
	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/types"
)

func Test_SaveConversationRecomputesDerivedFields(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	long := strings.Repeat("长", 150)
	saved, err := logic.SaveConversation(types.Conversation{
		AssistantID: "a1",
		Title:       "t",
		// 调用方传入的冗余字段被忽略
		MessageCount:       99,
		LastMessagePreview: "stale",
		Messages: []types.Message{
			{Role: types.MESSAGE_ROLE_USER, Content: "第一条"},
			{Role: types.MESSAGE_ROLE_ASSISTANT, Content: long},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, saved.MessageCount)
	assert.Equal(t, 100, len([]rune(saved.LastMessagePreview)))
	assert.Equal(t, strings.Repeat("长", 100), saved.LastMessagePreview)

	got, err := logic.GetConversation(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "第一条", got.Messages[0].Content)
}

func Test_SaveConversationRejectsInvalidRole(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	_, err := logic.SaveConversation(types.Conversation{
		AssistantID: "a1",
		Messages:    []types.Message{{Role: "robot", Content: "hi"}},
	})
	assert.Error(t, err)
}

func Test_SaveConversationReplacesMessages(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	saved, err := logic.SaveConversation(types.Conversation{
		AssistantID: "a1",
		Messages: []types.Message{
			{Role: types.MESSAGE_ROLE_USER, Content: "one"},
			{Role: types.MESSAGE_ROLE_ASSISTANT, Content: "two"},
		},
	})
	require.NoError(t, err)

	saved.Messages = []types.Message{{Role: types.MESSAGE_ROLE_USER, Content: "only"}}
	again, err := logic.SaveConversation(*saved)
	require.NoError(t, err)
	assert.Equal(t, 1, again.MessageCount)

	got, err := logic.GetConversation(saved.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "only", got.Messages[0].Content)
}

func Test_ConversationListPinnedFirst(t *testing.T) {
	c := newTestCore(t)
	logic := v1.NewConversationLogic(ctx, c)

	first, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "older"})
	require.NoError(t, err)
	_, err = logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "newer"})
	require.NoError(t, err)

	// 置顶较旧的会话，它必须排到最前
	require.NoError(t, logic.PinConversation(first.ID, true))

	list, err := logic.ListConversations(types.ListConversationOptions{AssistantID: "a1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "older", list[0].Title)
	assert.True(t, list[0].IsPinned)
	assert.Equal(t, "newer", list[1].Title)
}

func Test_PinDoesNotBumpUpdatedAt(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	saved, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "t"})
	require.NoError(t, err)

	require.NoError(t, logic.PinConversation(saved.ID, true))

	got, err := logic.GetConversation(saved.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(saved.UpdatedAt))
	assert.False(t, got.PinnedAt.IsZero())
}

func Test_ArchiveConversationHiddenByDefault(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	saved, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "t"})
	require.NoError(t, err)
	require.NoError(t, logic.ArchiveConversation(saved.ID, true))

	list, err := logic.ListConversations(types.ListConversationOptions{AssistantID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = logic.ListConversations(types.ListConversationOptions{AssistantID: "a1", IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func Test_DeleteConversationCascadesMessages(t *testing.T) {
	c := newTestCore(t)
	logic := v1.NewConversationLogic(ctx, c)

	saved, err := logic.SaveConversation(types.Conversation{
		AssistantID: "a1",
		Messages:    []types.Message{{Role: types.MESSAGE_ROLE_USER, Content: "hi"}},
	})
	require.NoError(t, err)

	require.NoError(t, logic.DeleteConversation(saved.ID))

	_, err = logic.GetConversation(saved.ID)
	assert.True(t, errors.IsNotFound(err))

	messages, err := c.Store().MessageStore().ListByConversation(ctx, saved.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func Test_BulkPinIdempotent(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	a, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "a"})
	require.NoError(t, err)
	b, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "b"})
	require.NoError(t, err)

	ids := []string{a.ID, b.ID, "missing"}

	// 含不存在的 ID 也不报错，重复执行结果一致
	require.NoError(t, logic.BulkPinConversations(ids, true))
	require.NoError(t, logic.BulkPinConversations(ids, true))

	list, err := logic.ListConversations(types.ListConversationOptions{AssistantID: "a1", PinnedOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, logic.BulkPinConversations(ids, false))

	list, err = logic.ListConversations(types.ListConversationOptions{AssistantID: "a1", PinnedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func Test_BulkUpdateConversationTags(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	a, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "a"})
	require.NoError(t, err)
	b, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "b"})
	require.NoError(t, err)

	tags := []string{"work", "q3"}
	require.NoError(t, logic.BulkUpdateConversationTags([]string{a.ID, b.ID, "missing"}, tags))

	got, err := logic.GetConversation(a.ID)
	require.NoError(t, err)
	assert.Equal(t, tags, got.Tags)
	assert.True(t, got.UpdatedAt.After(a.UpdatedAt))

	// 标签已一致时是空操作，UpdatedAt 不再变化
	require.NoError(t, logic.BulkUpdateConversationTags([]string{a.ID, b.ID}, tags))
	again, err := logic.GetConversation(a.ID)
	require.NoError(t, err)
	assert.Equal(t, got.UpdatedAt, again.UpdatedAt)
}

func Test_BulkArchiveAndDelete(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	a, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "a"})
	require.NoError(t, err)
	b, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "b"})
	require.NoError(t, err)

	require.NoError(t, logic.BulkArchiveConversations([]string{a.ID, b.ID}, true))

	list, err := logic.ListConversations(types.ListConversationOptions{AssistantID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, logic.BulkDeleteConversations([]string{a.ID, b.ID}))

	list, err = logic.ListConversations(types.ListConversationOptions{AssistantID: "a1", IncludeArchived: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func Test_SearchConversations(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	_, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "Weekly Report"})
	require.NoError(t, err)
	_, err = logic.SaveConversation(types.Conversation{
		AssistantID: "a1",
		Title:       "untitled",
		Messages:    []types.Message{{Role: types.MESSAGE_ROLE_USER, Content: "please draft the REPORT for me"}},
	})
	require.NoError(t, err)
	_, err = logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "groceries"})
	require.NoError(t, err)
	archived, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "Archived Report"})
	require.NoError(t, err)
	require.NoError(t, logic.ArchiveConversation(archived.ID, true))

	// 归档会话默认不参与检索，与列表行为一致
	res, err := logic.SearchConversations("report", types.ListConversationOptions{AssistantID: "a1"})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = logic.SearchConversations("report", types.ListConversationOptions{AssistantID: "a1", IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, res, 3)

	// 分页作用在命中结果上
	res, err = logic.SearchConversations("report", types.ListConversationOptions{AssistantID: "a1", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = logic.SearchConversations("  ", types.ListConversationOptions{AssistantID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func Test_UpdateConversationTitle(t *testing.T) {
	logic := v1.NewConversationLogic(ctx, newTestCore(t))

	saved, err := logic.SaveConversation(types.Conversation{AssistantID: "a1", Title: "old"})
	require.NoError(t, err)

	require.NoError(t, logic.UpdateConversationTitle(saved.ID, "new"))

	got, err := logic.GetConversation(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.True(t, got.UpdatedAt.After(saved.UpdatedAt))
}

func Test_AutoSaveCoalesces(t *testing.T) {
	cfg := core.CoreConfig{}
	cfg.Log.Level = "error"
	cfg.AutoSave.WaitMS = 30
	c := core.MustSetupCore(cfg)
	t.Cleanup(func() { c.Close() })

	logic := v1.NewConversationLogic(ctx, c)

	conv := types.Conversation{ID: "conv-1", AssistantID: "a1", Title: "v1"}
	logic.AutoSaveConversation(conv)
	conv.Title = "v2"
	logic.AutoSaveConversation(conv)
	conv.Title = "v3"
	logic.AutoSaveConversation(conv)

	require.Eventually(t, func() bool {
		got, err := logic.GetConversation("conv-1")
		return err == nil && got.Title == "v3"
	}, 2*time.Second, 10*time.Millisecond)

	// 合并窗口内的前两次触发被覆盖，只有最后一次落盘
	got, err := logic.GetConversation("conv-1")
	require.NoError(t, err)
	assert.Equal(t, "v3", got.Title)
}
