package kvstore

import (
	"context"
	"encoding/json"

	"github.com/samber/lo"

	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/register"
	"github.com/lumina-ai/lumina/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.KnowledgeFileStore = NewKnowledgeFileStore(provider)
	})
}

// knowledgeFileRow 知识文件独立成表，挂在助手下
// 文件内容不落本表，编码时只保留元信息与对象存储位置
type knowledgeFileRow struct {
	ID          string `json:"id"`
	AssistantID string `json:"assistant_id"`
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	ObjectKey   string `json:"object_key"`
}

func encodeKnowledgeFile(data types.KnowledgeFile, assistantID string) (kv.Document, error) {
	rec := knowledgeFileRow{
		ID:          data.ID,
		AssistantID: assistantID,
		Name:        data.Name,
		MimeType:    data.MimeType,
		Size:        data.Size,
		ObjectKey:   data.ObjectKey,
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return kv.Document{}, ErrorCodec(err)
	}

	return kv.Document{
		Key: data.ID,
		Doc: raw,
		Index: map[string]string{
			IDX_ASSISTANT_ID: assistantID,
		},
	}, nil
}

func decodeKnowledgeFile(raw []byte) (*types.KnowledgeFile, error) {
	var rec knowledgeFileRow
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, ErrorCodec(err)
	}

	return &types.KnowledgeFile{
		ID:        rec.ID,
		Name:      rec.Name,
		MimeType:  rec.MimeType,
		Size:      rec.Size,
		ObjectKey: rec.ObjectKey,
	}, nil
}

type KnowledgeFileStore struct {
	CommonFields
}

// NewKnowledgeFileStore 创建新的实例
func NewKnowledgeFileStore(provider *Provider) *KnowledgeFileStore {
	res := &KnowledgeFileStore{}
	res.SetProvider(provider)
	res.SetTable(types.TABLE_KNOWLEDGE_FILE)
	return res
}

// BatchSave 批量写入助手的知识文件元信息
func (s *KnowledgeFileStore) BatchSave(ctx context.Context, datas []types.KnowledgeFile, assistantID string) error {
	if len(datas) == 0 {
		return nil
	}

	docs := make([]kv.Document, 0, len(datas))
	for _, data := range datas {
		doc, err := encodeKnowledgeFile(data, assistantID)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	return s.DB().BulkPut(ctx, s.GetTable(), docs)
}

func (s *KnowledgeFileStore) ListByAssistant(ctx context.Context, assistantID string) ([]*types.KnowledgeFile, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_ASSISTANT_ID,
		Equals: assistantID,
	})
	if err != nil {
		return nil, err
	}

	res := make([]*types.KnowledgeFile, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeKnowledgeFile(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, data)
	}
	return res, nil
}

// DeleteByAssistant 删除助手的全部知识文件元信息，返回删除数量
func (s *KnowledgeFileStore) DeleteByAssistant(ctx context.Context, assistantID string) (int, error) {
	datas, err := s.ListByAssistant(ctx, assistantID)
	if err != nil {
		return 0, err
	}
	if len(datas) == 0 {
		return 0, nil
	}

	keys := lo.Map(datas, func(item *types.KnowledgeFile, _ int) string {
		return item.ID
	})

	if err := s.DB().BulkDelete(ctx, s.GetTable(), keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}
