package types

import "time"

// Message 会话消息，独立成表以便按会话扫描
// 会话保存时整组消息删除重建，不做原地更新
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

type MessageRole string

const (
	MESSAGE_ROLE_USER      MessageRole = "user"
	MESSAGE_ROLE_ASSISTANT MessageRole = "assistant"
	MESSAGE_ROLE_SYSTEM    MessageRole = "system"
	MESSAGE_ROLE_TOOL      MessageRole = "tool"
)

func (r MessageRole) Valid() bool {
	switch r {
	case MESSAGE_ROLE_USER, MESSAGE_ROLE_ASSISTANT, MESSAGE_ROLE_SYSTEM, MESSAGE_ROLE_TOOL:
		return true
	}
	return false
}
