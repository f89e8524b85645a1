package types

import "time"

// Conversation 会话记录，归属于一个助手
// MessageCount 与 LastMessagePreview 为冗余字段，每次保存时重新计算，
// 不信任调用方传入的值
type Conversation struct {
	ID          string    `json:"id"`
	AssistantID string    `json:"assistant_id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	MessageCount       int    `json:"message_count"`
	LastMessagePreview string `json:"last_message_preview"`

	Tags       []string  `json:"tags"`
	IsPinned   bool      `json:"is_pinned"`
	PinnedAt   time.Time `json:"pinned_at"`
	IsArchived bool      `json:"is_archived"`
	ArchivedAt time.Time `json:"archived_at"`
}

// PREVIEW_MAX_RUNES 会话预览取最后一条消息内容的前 100 个字符
const PREVIEW_MAX_RUNES = 100

// ListConversationOptions 会话列表筛选条件
// 排序固定为置顶优先，组内按 UpdatedAt 倒序
type ListConversationOptions struct {
	AssistantID     string
	IncludeArchived bool
	PinnedOnly      bool
	Offset          uint64
	Limit           uint64
}
