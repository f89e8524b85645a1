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
		provider.stores.AssistantVersionStore = NewAssistantVersionStore(provider)
	})
}

// assistantVersionRecord 版本快照复用助手的编码结构
type assistantVersionRecord struct {
	ID          string          `json:"id"`
	AssistantID string          `json:"assistant_id"`
	Version     int             `json:"version"`
	Snapshot    assistantRecord `json:"snapshot"`
	CreatedAt   string          `json:"created_at"`
}

func encodeAssistantVersion(data types.AssistantVersion) (kv.Document, error) {
	snapshotDoc, err := encodeAssistant(data.Snapshot)
	if err != nil {
		return kv.Document{}, err
	}
	var snapshot assistantRecord
	if err = json.Unmarshal(snapshotDoc.Doc, &snapshot); err != nil {
		return kv.Document{}, ErrorCodec(err)
	}

	rec := assistantVersionRecord{
		ID:          data.ID,
		AssistantID: data.AssistantID,
		Version:     data.Version,
		Snapshot:    snapshot,
		CreatedAt:   formatTime(data.CreatedAt),
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
			IDX_CREATED_AT:   rec.CreatedAt,
		},
	}, nil
}

func decodeAssistantVersion(raw []byte) (*types.AssistantVersion, error) {
	var rec assistantVersionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, ErrorCodec(err)
	}

	snapshotRaw, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return nil, ErrorCodec(err)
	}
	snapshot, err := decodeAssistant(snapshotRaw)
	if err != nil {
		return nil, err
	}

	createdAt, err := parseTime(rec.CreatedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}

	return &types.AssistantVersion{
		ID:          rec.ID,
		AssistantID: rec.AssistantID,
		Version:     rec.Version,
		Snapshot:    *snapshot,
		CreatedAt:   createdAt,
	}, nil
}

type AssistantVersionStore struct {
	CommonFields
}

// NewAssistantVersionStore 创建新的实例
func NewAssistantVersionStore(provider *Provider) *AssistantVersionStore {
	res := &AssistantVersionStore{}
	res.SetProvider(provider)
	res.SetTable(types.TABLE_ASSISTANT_VERSION)
	return res
}

func (s *AssistantVersionStore) Create(ctx context.Context, data types.AssistantVersion) error {
	doc, err := encodeAssistantVersion(data)
	if err != nil {
		return err
	}
	return s.DB().Put(ctx, s.GetTable(), doc)
}

// ListByAssistant 按创建时间倒序列出助手的版本快照
func (s *AssistantVersionStore) ListByAssistant(ctx context.Context, assistantID string) ([]*types.AssistantVersion, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_ASSISTANT_ID,
		Equals: assistantID,
		SortBy: IDX_CREATED_AT,
		Desc:   true,
	})
	if err != nil {
		return nil, err
	}

	res := make([]*types.AssistantVersion, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeAssistantVersion(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, data)
	}
	return res, nil
}

// DeleteByAssistant 删除助手的全部版本快照，返回删除数量
func (s *AssistantVersionStore) DeleteByAssistant(ctx context.Context, assistantID string) (int, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_ASSISTANT_ID,
		Equals: assistantID,
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeAssistantVersion(raw)
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
