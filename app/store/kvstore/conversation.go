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
		provider.stores.ConversationStore = NewConversationStore(provider)
	})
}

// conversationRecord 会话落盘结构，消息单独成表不在此处
type conversationRecord struct {
	ID                 string   `json:"id"`
	AssistantID        string   `json:"assistant_id"`
	Title              string   `json:"title"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
	MessageCount       int      `json:"message_count"`
	LastMessagePreview string   `json:"last_message_preview"`
	Tags               []string `json:"tags"`
	IsPinned           bool     `json:"is_pinned"`
	PinnedAt           string   `json:"pinned_at"`
	IsArchived         bool     `json:"is_archived"`
	ArchivedAt         string   `json:"archived_at"`
}

func encodeConversation(data types.Conversation) (kv.Document, error) {
	rec := conversationRecord{
		ID:                 data.ID,
		AssistantID:        data.AssistantID,
		Title:              data.Title,
		CreatedAt:          formatTime(data.CreatedAt),
		UpdatedAt:          formatTime(data.UpdatedAt),
		MessageCount:       data.MessageCount,
		LastMessagePreview: data.LastMessagePreview,
		Tags:               data.Tags,
		IsPinned:           data.IsPinned,
		PinnedAt:           formatTime(data.PinnedAt),
		IsArchived:         data.IsArchived,
		ArchivedAt:         formatTime(data.ArchivedAt),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return kv.Document{}, ErrorCodec(err)
	}

	return kv.Document{
		Key: data.ID,
		Doc: raw,
		Index: map[string]string{
			IDX_ASSISTANT_ID: data.AssistantID,
			IDX_UPDATED_AT:   rec.UpdatedAt,
			IDX_IS_ARCHIVED:  formatBool(data.IsArchived),
			// rank 倒序扫描 = 置顶优先、组内按最近更新
			IDX_RANK: formatBool(data.IsPinned) + ":" + rec.UpdatedAt,
		},
	}, nil
}

func decodeConversation(raw []byte) (*types.Conversation, error) {
	var rec conversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, ErrorCodec(err)
	}

	createdAt, err := parseTime(rec.CreatedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}
	updatedAt, err := parseTime(rec.UpdatedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}
	pinnedAt, err := parseTime(rec.PinnedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}
	archivedAt, err := parseTime(rec.ArchivedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}

	return &types.Conversation{
		ID:                 rec.ID,
		AssistantID:        rec.AssistantID,
		Title:              rec.Title,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
		MessageCount:       rec.MessageCount,
		LastMessagePreview: rec.LastMessagePreview,
		Tags:               rec.Tags,
		IsPinned:           rec.IsPinned,
		PinnedAt:           pinnedAt,
		IsArchived:         rec.IsArchived,
		ArchivedAt:         archivedAt,
	}, nil
}

type ConversationStore struct {
	CommonFields
}

// NewConversationStore 创建新的实例
func NewConversationStore(provider *Provider) *ConversationStore {
	res := &ConversationStore{}
	res.SetProvider(provider)
	res.SetTable(types.TABLE_CONVERSATION)
	return res
}

func (s *ConversationStore) Save(ctx context.Context, data types.Conversation) error {
	doc, err := encodeConversation(data)
	if err != nil {
		return err
	}
	return s.DB().Put(ctx, s.GetTable(), doc)
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*types.Conversation, error) {
	raw, err := s.DB().Get(ctx, s.GetTable(), id)
	if err != nil {
		return nil, err
	}
	return decodeConversation(raw)
}

func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	return s.DB().Delete(ctx, s.GetTable(), id)
}

// List 置顶优先、组内按更新时间倒序
// 底层只支持单字段等值过滤，归档/置顶等剩余条件在内存中收敛，
// 因此分页同样在过滤后进行
func (s *ConversationStore) List(ctx context.Context, opts types.ListConversationOptions) ([]*types.Conversation, error) {
	q := kv.Query{
		SortBy: IDX_RANK,
		Desc:   true,
	}
	if opts.AssistantID != "" {
		q.Index = IDX_ASSISTANT_ID
		q.Equals = opts.AssistantID
	}

	docs, err := s.DB().Scan(ctx, s.GetTable(), q)
	if err != nil {
		return nil, err
	}

	res := make([]*types.Conversation, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeConversation(raw)
		if err != nil {
			return nil, err
		}
		if data.IsArchived && !opts.IncludeArchived {
			continue
		}
		if opts.PinnedOnly && !data.IsPinned {
			continue
		}
		res = append(res, data)
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

// ListByAssistant 列出助手名下全部会话，含归档，级联删除用
func (s *ConversationStore) ListByAssistant(ctx context.Context, assistantID string) ([]*types.Conversation, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_ASSISTANT_ID,
		Equals: assistantID,
		SortBy: IDX_UPDATED_AT,
		Desc:   true,
	})
	if err != nil {
		return nil, err
	}

	res := make([]*types.Conversation, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeConversation(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, data)
	}
	return res, nil
}
