package v1

import (
	"context"
	stderrors "errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/lumina-ai/lumina/app/core"
	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/types"
	"github.com/lumina-ai/lumina/pkg/utils"
)

type ConversationLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewConversationLogic(ctx context.Context, core *core.Core) *ConversationLogic {
	return &ConversationLogic{
		ctx:  ctx,
		core: core,
	}
}

const conversationCacheName = "conversation"

// GetConversation 读穿缓存，缓存值包含完整消息列表
func (l *ConversationLogic) GetConversation(id string) (*types.Conversation, error) {
	if data, ok := l.core.ConversationCache().Get(id); ok {
		l.core.Metrics().CacheHitInc(conversationCacheName)
		return &data, nil
	}
	l.core.Metrics().CacheMissInc(conversationCacheName)

	data, err := l.core.Store().ConversationStore().Get(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("ConversationLogic.GetConversation.ConversationStore.Get", err)
	}

	messages, err := l.core.Store().MessageStore().ListByConversation(l.ctx, id)
	if err != nil {
		return nil, wrapStoreError("ConversationLogic.GetConversation.MessageStore.ListByConversation", err)
	}
	data.Messages = messages

	l.core.ConversationCache().Set(id, *data)
	return data, nil
}

// SaveConversation 写入或覆盖会话
// 消息整组删除重建，MessageCount 与 LastMessagePreview
// 从消息列表重新计算，不信任调用方传入的值
func (l *ConversationLogic) SaveConversation(data types.Conversation) (*types.Conversation, error) {
	if data.AssistantID == "" {
		return nil, errors.New("ConversationLogic.SaveConversation.assistantID", errors.ERROR_INVALID_ARGUMENT, nil).Code(http.StatusBadRequest)
	}
	if data.ID == "" {
		data.ID = utils.GenUniqIDStr()
	}
	defer l.core.Metrics().OperationTimer("save_conversation").ObserveDuration()

	for i, msg := range data.Messages {
		if !msg.Role.Valid() {
			return nil, errors.New("ConversationLogic.SaveConversation.role", errors.ERROR_INVALID_ARGUMENT, nil).Code(http.StatusBadRequest)
		}
		if msg.ID == "" {
			msg.ID = utils.GenUniqIDStr()
		}
		msg.ConversationID = data.ID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		data.Messages[i] = msg
	}

	data.MessageCount = len(data.Messages)
	data.LastMessagePreview = ""
	if data.MessageCount > 0 {
		data.LastMessagePreview = utils.TruncateRunes(data.Messages[data.MessageCount-1].Content, types.PREVIEW_MAX_RUNES)
	}

	prev, err := l.core.Store().ConversationStore().Get(l.ctx, data.ID)
	if err != nil && !stderrors.Is(err, kv.ErrNotFound) {
		return nil, wrapStoreError("ConversationLogic.SaveConversation.ConversationStore.Get", err)
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

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if _, err := l.core.Store().MessageStore().DeleteByConversation(ctx, data.ID); err != nil {
			return wrapStoreError("ConversationLogic.SaveConversation.MessageStore.DeleteByConversation", err)
		}
		if err := l.core.Store().MessageStore().BatchCreate(ctx, data.Messages); err != nil {
			return wrapStoreError("ConversationLogic.SaveConversation.MessageStore.BatchCreate", err)
		}
		if err := l.core.Store().ConversationStore().Save(ctx, data); err != nil {
			return wrapStoreError("ConversationLogic.SaveConversation.ConversationStore.Save", err)
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
		Table:  types.TABLE_CONVERSATION,
		ID:     data.ID,
		Action: action,
	})

	return &data, nil
}

// AutoSaveConversation 合并窗口内的重复保存只落盘最后一次
// 实际落盘发生在后台，使用独立的 context
func (l *ConversationLogic) AutoSaveConversation(data types.Conversation) {
	saver := l.core.AutoSaver(func(data types.Conversation) error {
		if _, err := NewConversationLogic(context.Background(), l.core).SaveConversation(data); err != nil {
			return errors.Trace("ConversationLogic.AutoSaveConversation", err)
		}
		return nil
	})
	saver.Trigger(data.ID, data)
}

func (l *ConversationLogic) DeleteConversation(id string) error {
	if _, err := l.core.Store().ConversationStore().Get(l.ctx, id); err != nil {
		return wrapStoreError("ConversationLogic.DeleteConversation.ConversationStore.Get", err)
	}

	err := l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if _, err := l.core.Store().MessageStore().DeleteByConversation(ctx, id); err != nil {
			return wrapStoreError("ConversationLogic.DeleteConversation.MessageStore.DeleteByConversation", err)
		}
		if err := l.core.Store().ConversationStore().Delete(ctx, id); err != nil {
			return wrapStoreError("ConversationLogic.DeleteConversation.ConversationStore.Delete", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_CONVERSATION,
		ID:     id,
		Action: types.CHANGE_ACTION_DELETE,
	})
	return nil
}

// PinConversation 置顶只影响列表顺序，不改变 UpdatedAt
func (l *ConversationLogic) PinConversation(id string, pinned bool) error {
	data, err := l.core.Store().ConversationStore().Get(l.ctx, id)
	if err != nil {
		return wrapStoreError("ConversationLogic.PinConversation.ConversationStore.Get", err)
	}

	if data.IsPinned == pinned {
		return nil
	}

	data.IsPinned = pinned
	if pinned {
		data.PinnedAt = time.Now().UTC()
	} else {
		data.PinnedAt = time.Time{}
	}

	if err = l.core.Store().ConversationStore().Save(l.ctx, *data); err != nil {
		return wrapStoreError("ConversationLogic.PinConversation.ConversationStore.Save", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_CONVERSATION,
		ID:     id,
		Action: types.CHANGE_ACTION_UPDATE,
	})
	return nil
}

func (l *ConversationLogic) ArchiveConversation(id string, archived bool) error {
	data, err := l.core.Store().ConversationStore().Get(l.ctx, id)
	if err != nil {
		return wrapStoreError("ConversationLogic.ArchiveConversation.ConversationStore.Get", err)
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

	if err = l.core.Store().ConversationStore().Save(l.ctx, *data); err != nil {
		return wrapStoreError("ConversationLogic.ArchiveConversation.ConversationStore.Save", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_CONVERSATION,
		ID:     id,
		Action: types.CHANGE_ACTION_ARCHIVE,
	})
	return nil
}

func (l *ConversationLogic) UpdateConversationTitle(id, title string) error {
	data, err := l.core.Store().ConversationStore().Get(l.ctx, id)
	if err != nil {
		return wrapStoreError("ConversationLogic.UpdateConversationTitle.ConversationStore.Get", err)
	}

	data.Title = title
	data.UpdatedAt = nextUpdateTime(data.UpdatedAt)

	if err = l.core.Store().ConversationStore().Save(l.ctx, *data); err != nil {
		return wrapStoreError("ConversationLogic.UpdateConversationTitle.ConversationStore.Save", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_CONVERSATION,
		ID:     id,
		Action: types.CHANGE_ACTION_UPDATE,
	})
	return nil
}

// BulkPinConversations 单事务批量置顶，不存在的 ID 跳过
// 重复执行结果一致
func (l *ConversationLogic) BulkPinConversations(ids []string, pinned bool) error {
	return l.bulkUpdate(ids, types.CHANGE_ACTION_UPDATE, func(data *types.Conversation) bool {
		if data.IsPinned == pinned {
			return false
		}
		data.IsPinned = pinned
		if pinned {
			data.PinnedAt = time.Now().UTC()
		} else {
			data.PinnedAt = time.Time{}
		}
		return true
	})
}

// BulkArchiveConversations 单事务批量归档或恢复
func (l *ConversationLogic) BulkArchiveConversations(ids []string, archived bool) error {
	return l.bulkUpdate(ids, types.CHANGE_ACTION_ARCHIVE, func(data *types.Conversation) bool {
		if data.IsArchived == archived {
			return false
		}
		data.IsArchived = archived
		if archived {
			data.ArchivedAt = time.Now().UTC()
		} else {
			data.ArchivedAt = time.Time{}
		}
		return true
	})
}

// BulkUpdateConversationTags 单事务批量覆盖标签
func (l *ConversationLogic) BulkUpdateConversationTags(ids []string, tags []string) error {
	return l.bulkUpdate(ids, types.CHANGE_ACTION_UPDATE, func(data *types.Conversation) bool {
		if slices.Equal(data.Tags, tags) {
			return false
		}
		data.Tags = slices.Clone(tags)
		data.UpdatedAt = nextUpdateTime(data.UpdatedAt)
		return true
	})
}

// bulkUpdate 批量修改的公共骨架：单事务写入，
// 缓存失效与广播按条发送，本地回调只触发一次聚合通知
func (l *ConversationLogic) bulkUpdate(ids []string, action types.ChangeAction, apply func(data *types.Conversation) bool) error {
	changed := make([]string, 0, len(ids))

	err := l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		for _, id := range ids {
			data, err := l.core.Store().ConversationStore().Get(ctx, id)
			if err != nil {
				if stderrors.Is(err, kv.ErrNotFound) {
					continue
				}
				return wrapStoreError("ConversationLogic.bulkUpdate.ConversationStore.Get", err)
			}
			if !apply(data) {
				continue
			}
			if err = l.core.Store().ConversationStore().Save(ctx, *data); err != nil {
				return wrapStoreError("ConversationLogic.bulkUpdate.ConversationStore.Save", err)
			}
			changed = append(changed, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	for _, id := range changed {
		event := types.ChangeEvent{Table: types.TABLE_CONVERSATION, ID: id, Action: action}
		l.core.Invalidate(event)
		l.core.Publish(l.ctx, event)
	}
	l.core.Dispatch(types.ChangeEvent{
		Table:     types.TABLE_CONVERSATION,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// BulkDeleteConversations 单事务批量删除会话及其消息
func (l *ConversationLogic) BulkDeleteConversations(ids []string) error {
	deleted := make([]string, 0, len(ids))

	err := l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		for _, id := range ids {
			_, err := l.core.Store().ConversationStore().Get(ctx, id)
			if err != nil {
				if stderrors.Is(err, kv.ErrNotFound) {
					continue
				}
				return wrapStoreError("ConversationLogic.BulkDeleteConversations.ConversationStore.Get", err)
			}
			if _, err = l.core.Store().MessageStore().DeleteByConversation(ctx, id); err != nil {
				return wrapStoreError("ConversationLogic.BulkDeleteConversations.MessageStore.DeleteByConversation", err)
			}
			if err = l.core.Store().ConversationStore().Delete(ctx, id); err != nil {
				return wrapStoreError("ConversationLogic.BulkDeleteConversations.ConversationStore.Delete", err)
			}
			deleted = append(deleted, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return nil
	}

	for _, id := range deleted {
		event := types.ChangeEvent{Table: types.TABLE_CONVERSATION, ID: id, Action: types.CHANGE_ACTION_DELETE}
		l.core.Invalidate(event)
		l.core.Publish(l.ctx, event)
	}
	l.core.Dispatch(types.ChangeEvent{
		Table:     types.TABLE_CONVERSATION,
		Action:    types.CHANGE_ACTION_DELETE,
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// ListConversations 置顶优先，组内按更新时间倒序
func (l *ConversationLogic) ListConversations(opts types.ListConversationOptions) ([]*types.Conversation, error) {
	list, err := l.core.Store().ConversationStore().List(l.ctx, opts)
	if err != nil {
		return nil, wrapStoreError("ConversationLogic.ListConversations.ConversationStore.List", err)
	}
	return list, nil
}

// SearchConversations 大小写不敏感的子串匹配，
// 先查标题，未命中再查消息内容，结果保持列表顺序
// 过滤规则与 ListConversations 一致：归档会话默认不参与检索，
// 分页作用在命中结果上
func (l *ConversationLogic) SearchConversations(keyword string, opts types.ListConversationOptions) ([]*types.Conversation, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return []*types.Conversation{}, nil
	}

	listOpts := opts
	listOpts.Offset = types.NO_PAGINATION
	listOpts.Limit = types.NO_PAGINATION
	list, err := l.core.Store().ConversationStore().List(l.ctx, listOpts)
	if err != nil {
		return nil, wrapStoreError("ConversationLogic.SearchConversations.ConversationStore.List", err)
	}

	res := make([]*types.Conversation, 0)
	for _, data := range list {
		if strings.Contains(strings.ToLower(data.Title), keyword) {
			res = append(res, data)
			continue
		}

		messages, err := l.core.Store().MessageStore().ListByConversation(l.ctx, data.ID)
		if err != nil {
			return nil, wrapStoreError("ConversationLogic.SearchConversations.MessageStore.ListByConversation", err)
		}
		for _, msg := range messages {
			if strings.Contains(strings.ToLower(msg.Content), keyword) {
				res = append(res, data)
				break
			}
		}
	}

	if opts.Offset > 0 {
		if opts.Offset >= uint64(len(res)) {
			return []*types.Conversation{}, nil
		}
		res = res[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < uint64(len(res)) {
		res = res[:opts.Limit]
	}
	return res, nil
}
