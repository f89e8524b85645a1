package v1

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumina-ai/lumina/app/core"
	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/types"
	"github.com/lumina-ai/lumina/pkg/utils"
)

type AssistantLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewAssistantLogic(ctx context.Context, core *core.Core) *AssistantLogic {
	return &AssistantLogic{
		ctx:  ctx,
		core: core,
	}
}

const assistantCacheName = "assistant"

// GetAssistant 读穿缓存，未命中回源底层存储
func (l *AssistantLogic) GetAssistant(id string) (*types.Assistant, error) {
	if data, ok := l.core.AssistantCache().Get(id); ok {
		l.core.Metrics().CacheHitInc(assistantCacheName)
		return &data, nil
	}
	l.core.Metrics().CacheMissInc(assistantCacheName)

	data, err := l.core.Store().AssistantStore().Get(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.GetAssistant.AssistantStore.Get", err)
	}

	l.core.AssistantCache().Set(id, *data)
	return data, nil
}

func (l *AssistantLogic) ListAssistants() ([]*types.Assistant, error) {
	list, err := l.core.Store().AssistantStore().List(l.ctx, false)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.ListAssistants.AssistantStore.List", err)
	}
	return list, nil
}

func (l *AssistantLogic) ListArchivedAssistants() ([]*types.Assistant, error) {
	list, err := l.core.Store().AssistantStore().List(l.ctx, true)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.ListArchivedAssistants.AssistantStore.List", err)
	}
	return list, nil
}

// SaveAssistant 写入或覆盖助手
// UpdatedAt 由本层统一盖章并保证严格递增；配置了对象存储时，
// 新的知识库文件内容转存外部，记录内只留元信息
func (l *AssistantLogic) SaveAssistant(data types.Assistant) (*types.Assistant, error) {
	if data.Name == "" {
		return nil, errors.New("AssistantLogic.SaveAssistant.name", errors.ERROR_INVALID_ARGUMENT, nil).Code(http.StatusBadRequest)
	}
	defer l.core.Metrics().OperationTimer("save_assistant").ObserveDuration()

	if data.ID == "" {
		data.ID = utils.GenUniqIDStr()
	}
	if data.Version <= 0 {
		data.Version = 1
	}

	// 文件 ID 即存储主键，缺失时必须先补齐，
	// 否则整组文件会折叠到同一个空键上
	for i, file := range data.Knowledge.Files {
		if file.ID == "" {
			file.ID = utils.GenUniqIDStr()
			data.Knowledge.Files[i] = file
		}
	}

	prev, err := l.core.Store().AssistantStore().Get(l.ctx, data.ID)
	if err != nil && !stderrors.Is(err, kv.ErrNotFound) {
		return nil, wrapStoreError("AssistantLogic.SaveAssistant.AssistantStore.Get", err)
	}
	if prev != nil {
		data.CreatedAt = prev.CreatedAt
		data.UpdatedAt = nextUpdateTime(prev.UpdatedAt)
	} else {
		if data.CreatedAt.IsZero() {
			data.CreatedAt = time.Now().UTC()
		}
		data.UpdatedAt = nextUpdateTime(data.UpdatedAt)
	}

	if err := l.offloadKnowledgeFiles(&data); err != nil {
		return nil, err
	}

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().AssistantStore().Save(ctx, data); err != nil {
			return wrapStoreError("AssistantLogic.SaveAssistant.AssistantStore.Save", err)
		}
		if _, err := l.core.Store().KnowledgeFileStore().DeleteByAssistant(ctx, data.ID); err != nil {
			return wrapStoreError("AssistantLogic.SaveAssistant.KnowledgeFileStore.DeleteByAssistant", err)
		}
		if err := l.core.Store().KnowledgeFileStore().BatchSave(ctx, data.Knowledge.Files, data.ID); err != nil {
			return wrapStoreError("AssistantLogic.SaveAssistant.KnowledgeFileStore.BatchSave", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := types.CHANGE_ACTION_UPDATE
	if prev == nil {
		action = types.CHANGE_ACTION_CREATE
	}
	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_ASSISTANT,
		ID:     data.ID,
		Action: action,
	})

	return &data, nil
}

// offloadKnowledgeFiles 把携带内容且尚未转存的文件写入对象存储
// 未配置对象存储时内容保持内联，由调用方自行持有
func (l *AssistantLogic) offloadKnowledgeFiles(data *types.Assistant) error {
	storage := l.core.FileStorage()
	if storage == nil {
		return nil
	}

	for i, file := range data.Knowledge.Files {
		if len(file.Content) == 0 || file.ObjectKey != "" {
			continue
		}
		key := fmt.Sprintf("knowledge/%s/%s", data.ID, file.ID)
		if err := storage.Upload(l.ctx, key, file.Content); err != nil {
			return errors.New("AssistantLogic.offloadKnowledgeFiles.Upload", errors.ERROR_INTERNAL, err).WithData(map[string]interface{}{
				"file": file.Name,
			})
		}
		file.ObjectKey = key
		data.Knowledge.Files[i] = file
	}
	return nil
}

// DeleteAssistant 删除助手记录本身，不级联
// 名下会话与消息保留为孤儿数据，由永久删除接口负责清理
func (l *AssistantLogic) DeleteAssistant(id string) error {
	if _, err := l.core.Store().AssistantStore().Get(l.ctx, id); err != nil {
		return wrapStoreError("AssistantLogic.DeleteAssistant.AssistantStore.Get", err)
	}

	if err := l.core.Store().AssistantStore().Delete(l.ctx, id); err != nil {
		return wrapStoreError("AssistantLogic.DeleteAssistant.AssistantStore.Delete", err)
	}

	slog.Debug("assistant deleted without cascade, related records kept", slog.String("assistant_id", id))

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_ASSISTANT,
		ID:     id,
		Action: types.CHANGE_ACTION_DELETE,
	})
	return nil
}

func (l *AssistantLogic) ArchiveAssistant(id string) error {
	return l.setArchived(id, true)
}

func (l *AssistantLogic) RestoreAssistant(id string) error {
	return l.setArchived(id, false)
}

func (l *AssistantLogic) setArchived(id string, archived bool) error {
	data, err := l.core.Store().AssistantStore().Get(l.ctx, id)
	if err != nil {
		return wrapStoreError("AssistantLogic.setArchived.AssistantStore.Get", err)
	}

	if data.IsArchived == archived {
		return nil
	}

	data.IsArchived = archived
	if archived {
		data.ArchivedAt = time.Now().UTC()
	} else {
		data.ArchivedAt = time.Time{}
	}
	data.UpdatedAt = nextUpdateTime(data.UpdatedAt)

	if err = l.core.Store().AssistantStore().Save(l.ctx, *data); err != nil {
		return wrapStoreError("AssistantLogic.setArchived.AssistantStore.Save", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_ASSISTANT,
		ID:     id,
		Action: types.CHANGE_ACTION_ARCHIVE,
	})
	return nil
}

// DuplicateAssistant 复制一份全新的助手，newName 为空时在原名后追加 (copy)
// 新记录拥有独立 ID、版本从 1 重新计数、归档状态清空；
// 知识库文件逐个换新 ID，源助手名下的行不受影响
func (l *AssistantLogic) DuplicateAssistant(id, newName string) (*types.Assistant, error) {
	src, err := l.core.Store().AssistantStore().Get(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.DuplicateAssistant.AssistantStore.Get", err)
	}

	now := time.Now().UTC()
	dup := *src
	dup.ID = utils.GenUniqIDStr()
	if newName != "" {
		dup.Name = newName
	} else {
		dup.Name = fmt.Sprintf("%s (copy)", src.Name)
	}
	dup.Version = 1
	dup.CreatedAt = now
	dup.UpdatedAt = now
	dup.IsArchived = false
	dup.ArchivedAt = time.Time{}

	files, err := l.core.Store().KnowledgeFileStore().ListByAssistant(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.DuplicateAssistant.KnowledgeFileStore.ListByAssistant", err)
	}

	copies := make([]types.KnowledgeFile, 0, len(files))
	for _, f := range files {
		c := *f
		c.ID = utils.GenUniqIDStr()
		if storage := l.core.FileStorage(); storage != nil && c.ObjectKey != "" {
			body, err := storage.Download(l.ctx, c.ObjectKey)
			if err != nil {
				return nil, errors.New("AssistantLogic.DuplicateAssistant.Download", errors.ERROR_INTERNAL, err).WithData(map[string]interface{}{
					"file": c.Name,
				})
			}
			key := fmt.Sprintf("knowledge/%s/%s", dup.ID, c.ID)
			if err = storage.Upload(l.ctx, key, body); err != nil {
				return nil, errors.New("AssistantLogic.DuplicateAssistant.Upload", errors.ERROR_INTERNAL, err).WithData(map[string]interface{}{
					"file": c.Name,
				})
			}
			c.ObjectKey = key
		}
		copies = append(copies, c)
	}
	dup.Knowledge.Files = copies

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().AssistantStore().Save(ctx, dup); err != nil {
			return wrapStoreError("AssistantLogic.DuplicateAssistant.AssistantStore.Save", err)
		}
		if err := l.core.Store().KnowledgeFileStore().BatchSave(ctx, copies, dup.ID); err != nil {
			return wrapStoreError("AssistantLogic.DuplicateAssistant.KnowledgeFileStore.BatchSave", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_ASSISTANT,
		ID:     dup.ID,
		Action: types.CHANGE_ACTION_CREATE,
	})

	return &dup, nil
}

// DeleteAssistantPermanently 单事务级联删除助手及其全部关联数据
// 任一步失败整体回滚，不会留下半删状态
func (l *AssistantLogic) DeleteAssistantPermanently(id string) (*types.CascadeDeleteResult, error) {
	defer l.core.Metrics().OperationTimer("cascade_delete").ObserveDuration()

	if _, err := l.core.Store().AssistantStore().Get(l.ctx, id); err != nil {
		return nil, wrapStoreError("AssistantLogic.DeleteAssistantPermanently.AssistantStore.Get", err)
	}

	conversations, err := l.core.Store().ConversationStore().ListByAssistant(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.DeleteAssistantPermanently.ConversationStore.ListByAssistant", err)
	}

	result := &types.CascadeDeleteResult{}
	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		for _, conv := range conversations {
			deleted, err := l.core.Store().MessageStore().DeleteByConversation(ctx, conv.ID)
			if err != nil {
				return wrapStoreError("AssistantLogic.DeleteAssistantPermanently.MessageStore.DeleteByConversation", err)
			}
			result.Messages += deleted

			if err = l.core.Store().ConversationStore().Delete(ctx, conv.ID); err != nil {
				return wrapStoreError("AssistantLogic.DeleteAssistantPermanently.ConversationStore.Delete", err)
			}
			result.Conversations++
		}

		versions, err := l.core.Store().AssistantVersionStore().DeleteByAssistant(ctx, id)
		if err != nil {
			return wrapStoreError("AssistantLogic.DeleteAssistantPermanently.AssistantVersionStore.DeleteByAssistant", err)
		}
		result.Versions = versions

		files, err := l.core.Store().KnowledgeFileStore().DeleteByAssistant(ctx, id)
		if err != nil {
			return wrapStoreError("AssistantLogic.DeleteAssistantPermanently.KnowledgeFileStore.DeleteByAssistant", err)
		}
		result.KnowledgeFiles = files

		if err = l.core.Store().AssistantStore().Delete(ctx, id); err != nil {
			return wrapStoreError("AssistantLogic.DeleteAssistantPermanently.AssistantStore.Delete", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		l.core.Invalidate(types.ChangeEvent{Table: types.TABLE_CONVERSATION, ID: conv.ID, Action: types.CHANGE_ACTION_DELETE})
		l.core.Publish(l.ctx, types.ChangeEvent{Table: types.TABLE_CONVERSATION, ID: conv.ID, Action: types.CHANGE_ACTION_DELETE})
	}
	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_ASSISTANT,
		ID:     id,
		Action: types.CHANGE_ACTION_DELETE,
	})

	return result, nil
}

// SnapshotVersion 为助手当前状态生成一个新的版本快照
func (l *AssistantLogic) SnapshotVersion(id string) (*types.AssistantVersion, error) {
	data, err := l.core.Store().AssistantStore().Get(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.SnapshotVersion.AssistantStore.Get", err)
	}

	data.Version++
	data.UpdatedAt = nextUpdateTime(data.UpdatedAt)

	version := &types.AssistantVersion{
		ID:          utils.GenUniqIDStr(),
		AssistantID: id,
		Version:     data.Version,
		Snapshot:    *data,
		CreatedAt:   time.Now().UTC(),
	}

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().AssistantVersionStore().Create(ctx, *version); err != nil {
			return wrapStoreError("AssistantLogic.SnapshotVersion.AssistantVersionStore.Create", err)
		}
		if err := l.core.Store().AssistantStore().Save(ctx, *data); err != nil {
			return wrapStoreError("AssistantLogic.SnapshotVersion.AssistantStore.Save", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_ASSISTANT,
		ID:     id,
		Action: types.CHANGE_ACTION_UPDATE,
	})

	return version, nil
}

func (l *AssistantLogic) ListVersions(assistantID string) ([]*types.AssistantVersion, error) {
	list, err := l.core.Store().AssistantVersionStore().ListByAssistant(l.ctx, assistantID)
	if err != nil {
		return nil, wrapStoreError("AssistantLogic.ListVersions.AssistantVersionStore.ListByAssistant", err)
	}
	return list, nil
}
