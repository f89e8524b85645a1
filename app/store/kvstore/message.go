package kvstore

import (
	"context"
	"encoding/json"

	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/register"
	"github.com/lumina-ai/lumina/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.MessageStore = NewMessageStore(provider)
	})
}

type messageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

func encodeMessage(data types.Message) (kv.Document, error) {
	rec := messageRecord{
		ID:             data.ID,
		ConversationID: data.ConversationID,
		Role:           string(data.Role),
		Content:        data.Content,
		CreatedAt:      formatTime(data.CreatedAt),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return kv.Document{}, ErrorCodec(err)
	}

	return kv.Document{
		Key: data.ID,
		Doc: raw,
		Index: map[string]string{
			IDX_CONVERSATION: data.ConversationID,
			IDX_CREATED_AT:   rec.CreatedAt,
		},
	}, nil
}

func decodeMessage(raw []byte) (types.Message, error) {
	var rec messageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.Message{}, ErrorCodec(err)
	}

	createdAt, err := parseTime(rec.CreatedAt)
	if err != nil {
		return types.Message{}, ErrorCodec(err)
	}

	return types.Message{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		Role:           types.MessageRole(rec.Role),
		Content:        rec.Content,
		CreatedAt:      createdAt,
	}, nil
}

type MessageStore struct {
	CommonFields
}

// NewMessageStore 创建新的实例
func NewMessageStore(provider *Provider) *MessageStore {
	res := &MessageStore{}
	res.SetProvider(provider)
	res.SetTable(types.TABLE_MESSAGE)
	return res
}

// BatchCreate 批量写入消息
func (s *MessageStore) BatchCreate(ctx context.Context, datas []types.Message) error {
	if len(datas) == 0 {
		return nil
	}

	docs := make([]kv.Document, 0, len(datas))
	for _, data := range datas {
		doc, err := encodeMessage(data)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	return s.DB().BulkPut(ctx, s.GetTable(), docs)
}

// ListByConversation 按创建时间正序列出会话消息
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string) ([]types.Message, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_CONVERSATION,
		Equals: conversationID,
		SortBy: IDX_CREATED_AT,
	})
	if err != nil {
		return nil, err
	}

	res := make([]types.Message, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeMessage(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, data)
	}
	return res, nil
}

// DeleteByConversation 删除会话下全部消息，返回删除数量
func (s *MessageStore) DeleteByConversation(ctx context.Context, conversationID string) (int, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_CONVERSATION,
		Equals: conversationID,
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeMessage(raw)
		if err != nil {
			return 0, err
		}
		keys = append(keys, data.ID)
	}

	if err := s.DB().BulkDelete(ctx, s.GetTable(), keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}
