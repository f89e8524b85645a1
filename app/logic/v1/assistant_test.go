package v1_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-ai/lumina/app/core"
	v1 "github.com/lumina-ai/lumina/app/logic/v1"
	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/kv/memkv"
	"github.com/lumina-ai/lumina/pkg/types"
)

func Test_SaveAndGetAssistant(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	saved, err := logic.SaveAssistant(types.Assistant{Name: "翻译助手", Model: "gpt-4o"})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, saved.Version)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := logic.GetAssistant(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "翻译助手", got.Name)
}

func Test_SaveAssistantUpdatedAtStrictlyIncreases(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	first, err := logic.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	prev := first.UpdatedAt
	for i := 0; i < 5; i++ {
		first.Name = "a"
		saved, err := logic.SaveAssistant(*first)
		require.NoError(t, err)
		assert.True(t, saved.UpdatedAt.After(prev), "UpdatedAt must strictly increase")
		prev = saved.UpdatedAt
		first = saved
	}
}

func Test_SaveAssistantRequiresName(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	_, err := logic.SaveAssistant(types.Assistant{})
	assert.Error(t, err)
}

func Test_AssistantCacheCoherency(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	saved, err := logic.SaveAssistant(types.Assistant{Name: "before"})
	require.NoError(t, err)

	got, err := logic.GetAssistant(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)

	saved.Name = "after"
	_, err = logic.SaveAssistant(*saved)
	require.NoError(t, err)

	// 写入后缓存失效，读到的必须是最新值
	got, err = logic.GetAssistant(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
}

func Test_GetAssistantNotFound(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	_, err := logic.GetAssistant("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func Test_ArchiveAndRestoreAssistant(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	saved, err := logic.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	require.NoError(t, logic.ArchiveAssistant(saved.ID))

	active, err := logic.ListAssistants()
	require.NoError(t, err)
	assert.Empty(t, active)

	archived, err := logic.ListArchivedAssistants()
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.False(t, archived[0].ArchivedAt.IsZero())

	require.NoError(t, logic.RestoreAssistant(saved.ID))

	active, err = logic.ListAssistants()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].ArchivedAt.IsZero())
}

func Test_DuplicateAssistant(t *testing.T) {
	app := newTestCore(t)
	logic := v1.NewAssistantLogic(ctx, app)

	src, err := logic.SaveAssistant(types.Assistant{
		Name:    "研究助理",
		Version: 1,
		Knowledge: types.Knowledge{
			Files: []types.KnowledgeFile{{Name: "术语表.md", MimeType: "text/markdown", Size: 12}},
		},
	})
	require.NoError(t, err)
	_, err = logic.SnapshotVersion(src.ID)
	require.NoError(t, err)
	require.NoError(t, logic.ArchiveAssistant(src.ID))

	dup, err := logic.DuplicateAssistant(src.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "研究助理 (copy)", dup.Name)
	assert.Equal(t, 1, dup.Version)
	assert.False(t, dup.IsArchived)
	assert.True(t, dup.ArchivedAt.IsZero())

	named, err := logic.DuplicateAssistant(src.ID, "研究助理二号")
	require.NoError(t, err)
	assert.Equal(t, "研究助理二号", named.Name)

	_, err = logic.DuplicateAssistant("missing", "")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func Test_DuplicateAssistantCopiesKnowledgeFiles(t *testing.T) {
	app := newTestCore(t)
	logic := v1.NewAssistantLogic(ctx, app)

	src, err := logic.SaveAssistant(types.Assistant{
		Name: "a",
		Knowledge: types.Knowledge{
			Files: []types.KnowledgeFile{
				{Name: "one.md", Size: 1},
				{Name: "two.md", Size: 2},
			},
		},
	})
	require.NoError(t, err)

	dup, err := logic.DuplicateAssistant(src.ID, "")
	require.NoError(t, err)

	// 源助手名下的文件不能被复制过程挪走或覆盖
	srcFiles, err := app.Store().KnowledgeFileStore().ListByAssistant(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, srcFiles, 2)

	dupFiles, err := app.Store().KnowledgeFileStore().ListByAssistant(ctx, dup.ID)
	require.NoError(t, err)
	require.Len(t, dupFiles, 2)

	srcIDs := map[string]bool{}
	for _, f := range srcFiles {
		srcIDs[f.ID] = true
	}
	for _, f := range dupFiles {
		assert.NotEmpty(t, f.ID)
		assert.False(t, srcIDs[f.ID], "copied file must get a fresh ID")
	}
}

func Test_SaveAssistantAssignsKnowledgeFileIDs(t *testing.T) {
	app := newTestCore(t)
	logic := v1.NewAssistantLogic(ctx, app)

	// 不配置对象存储，文件 ID 依然必须逐个补齐
	saved, err := logic.SaveAssistant(types.Assistant{
		Name: "a",
		Knowledge: types.Knowledge{
			Files: []types.KnowledgeFile{
				{Name: "one.md", Size: 1},
				{Name: "two.md", Size: 2},
			},
		},
	})
	require.NoError(t, err)

	files, err := app.Store().KnowledgeFileStore().ListByAssistant(ctx, saved.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.NotEmpty(t, files[0].ID)
	assert.NotEmpty(t, files[1].ID)
	assert.NotEqual(t, files[0].ID, files[1].ID)
}

func Test_SnapshotVersionAndList(t *testing.T) {
	logic := v1.NewAssistantLogic(ctx, newTestCore(t))

	saved, err := logic.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	v2, err := logic.SnapshotVersion(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 2, v2.Snapshot.Version)

	v3, err := logic.SnapshotVersion(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)

	got, err := logic.GetAssistant(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)

	versions, err := logic.ListVersions(saved.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func Test_DeleteAssistantKeepsConversations(t *testing.T) {
	c := newTestCore(t)
	assistants := v1.NewAssistantLogic(ctx, c)
	conversations := v1.NewConversationLogic(ctx, c)

	saved, err := assistants.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	conv, err := conversations.SaveConversation(types.Conversation{AssistantID: saved.ID, Title: "t"})
	require.NoError(t, err)

	require.NoError(t, assistants.DeleteAssistant(saved.ID))

	// 非级联删除，会话作为孤儿数据保留
	orphan, err := conversations.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, orphan.AssistantID)
}

func Test_DeleteAssistantPermanently(t *testing.T) {
	c := newTestCore(t)
	assistants := v1.NewAssistantLogic(ctx, c)
	conversations := v1.NewConversationLogic(ctx, c)

	saved, err := assistants.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)
	_, err = assistants.SnapshotVersion(saved.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = conversations.SaveConversation(types.Conversation{
			AssistantID: saved.ID,
			Title:       "conv",
			Messages: []types.Message{
				{Role: types.MESSAGE_ROLE_USER, Content: "hi"},
				{Role: types.MESSAGE_ROLE_ASSISTANT, Content: "hello"},
			},
		})
		require.NoError(t, err)
	}

	result, err := assistants.DeleteAssistantPermanently(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Conversations)
	assert.Equal(t, 4, result.Messages)
	assert.Equal(t, 1, result.Versions)

	_, err = assistants.GetAssistant(saved.ID)
	assert.True(t, errors.IsNotFound(err))

	list, err := conversations.ListConversations(types.ListConversationOptions{AssistantID: saved.ID, IncludeArchived: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

// failingStore 注入单点故障，验证事务原子性
type failingStore struct {
	kv.Store
	failDeleteTable string
}

func (f *failingStore) Delete(ctx context.Context, table, key string) error {
	if table == f.failDeleteTable {
		return assert.AnError
	}
	return f.Store.Delete(ctx, table, key)
}

func Test_CascadeDeleteIsAtomic(t *testing.T) {
	db := &failingStore{
		Store:           memkv.NewStore(),
		failDeleteTable: types.TABLE_ASSISTANT.Name(),
	}
	c := newTestCore(t, core.WithStore(db))
	assistants := v1.NewAssistantLogic(ctx, c)
	conversations := v1.NewConversationLogic(ctx, c)

	saved, err := assistants.SaveAssistant(types.Assistant{Name: "a"})
	require.NoError(t, err)

	conv, err := conversations.SaveConversation(types.Conversation{
		AssistantID: saved.ID,
		Title:       "conv",
		Messages:    []types.Message{{Role: types.MESSAGE_ROLE_USER, Content: "hi"}},
	})
	require.NoError(t, err)

	// 最后一步删除助手记录失败，整个事务必须回滚
	_, err = assistants.DeleteAssistantPermanently(saved.ID)
	require.Error(t, err)

	// failingStore 只拦截 Delete，Get 正常读取回滚后的状态
	got, err := conversations.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)

	versions, err := assistants.ListVersions(saved.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func Test_QuotaErrorPassesThroughUnwrapped(t *testing.T) {
	db := memkv.NewStore(memkv.WithMaxBytes(64))
	c := newTestCore(t, core.WithStore(db))
	logic := v1.NewAssistantLogic(ctx, c)

	_, err := logic.SaveAssistant(types.Assistant{
		Name:         "big",
		SystemPrompt: string(make([]byte, 4096)),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrQuotaExceeded)
}
