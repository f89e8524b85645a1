package store

import (
	"context"

	"github.com/lumina-ai/lumina/pkg/types"
)

// AssistantStore 助手记录的存取
type AssistantStore interface {
	// Save 写入或覆盖助手记录
	Save(ctx context.Context, data types.Assistant) error
	// Get 根据ID获取助手记录
	Get(ctx context.Context, id string) (*types.Assistant, error)
	Delete(ctx context.Context, id string) error
	// List 按更新时间倒序列出助手，archived 区分活跃与归档
	List(ctx context.Context, archived bool) ([]*types.Assistant, error)
	Total(ctx context.Context) (int64, error)
}

// AssistantVersionStore 助手版本快照的存取
type AssistantVersionStore interface {
	Create(ctx context.Context, data types.AssistantVersion) error
	ListByAssistant(ctx context.Context, assistantID string) ([]*types.AssistantVersion, error)
	DeleteByAssistant(ctx context.Context, assistantID string) (int, error)
}

// ConversationStore 会话记录的存取，消息不在会话记录内
type ConversationStore interface {
	Save(ctx context.Context, data types.Conversation) error
	Get(ctx context.Context, id string) (*types.Conversation, error)
	Delete(ctx context.Context, id string) error
	// List 置顶优先、组内按更新时间倒序
	List(ctx context.Context, opts types.ListConversationOptions) ([]*types.Conversation, error)
	ListByAssistant(ctx context.Context, assistantID string) ([]*types.Conversation, error)
}

// MessageStore 消息记录的存取
// 会话保存时整组消息先删后插，保证“会话+消息”作为一个单元的原子性
type MessageStore interface {
	BatchCreate(ctx context.Context, datas []types.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]types.Message, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int, error)
}

// KnowledgeFileStore 知识库文件元信息的存取
type KnowledgeFileStore interface {
	BatchSave(ctx context.Context, datas []types.KnowledgeFile, assistantID string) error
	ListByAssistant(ctx context.Context, assistantID string) ([]*types.KnowledgeFile, error)
	DeleteByAssistant(ctx context.Context, assistantID string) (int, error)
}

// SettingStore 扁平设置表
type SettingStore interface {
	Put(ctx context.Context, data types.Setting) error
	Get(ctx context.Context, key string) (*types.Setting, error)
	Delete(ctx context.Context, key string) error
}
