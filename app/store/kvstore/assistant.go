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
		provider.stores.AssistantStore = NewAssistantStore(provider)
	})
}

// assistantRecord 助手的落盘结构，时间以可排序字符串存储
// 知识库文件只保留元信息，二进制内容在编码时有意丢弃
type assistantRecord struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	SystemPrompt string                 `json:"system_prompt"`
	Provider     string                 `json:"provider"`
	Model        string                 `json:"model"`
	Settings     types.ModelSettings    `json:"settings"`
	Tools        []types.ToolDefinition `json:"tools"`
	Knowledge    knowledgeRecord        `json:"knowledge"`
	Capabilities types.Capabilities     `json:"capabilities"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at"`
	Version      int                    `json:"version"`
	Tags         []string               `json:"tags"`
	IsArchived   bool                   `json:"is_archived"`
	ArchivedAt   string                 `json:"archived_at"`
	FolderID     string                 `json:"folder_id"`
}

type knowledgeRecord struct {
	Files          []knowledgeFileRecord `json:"files"`
	URLs           []string              `json:"urls"`
	ExtractionMode types.ExtractionMode  `json:"extraction_mode"`
}

type knowledgeFileRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	ObjectKey string `json:"object_key"`
}

func encodeAssistant(data types.Assistant) (kv.Document, error) {
	rec := assistantRecord{
		ID:           data.ID,
		Name:         data.Name,
		Description:  data.Description,
		SystemPrompt: data.SystemPrompt,
		Provider:     data.Provider,
		Model:        data.Model,
		Settings:     data.Settings,
		Tools:        data.Tools,
		Capabilities: data.Capabilities,
		CreatedAt:    formatTime(data.CreatedAt),
		UpdatedAt:    formatTime(data.UpdatedAt),
		Version:      data.Version,
		Tags:         data.Tags,
		IsArchived:   data.IsArchived,
		ArchivedAt:   formatTime(data.ArchivedAt),
		FolderID:     data.FolderID,
	}

	rec.Knowledge = knowledgeRecord{
		URLs:           data.Knowledge.URLs,
		ExtractionMode: data.Knowledge.ExtractionMode,
	}
	for _, f := range data.Knowledge.Files {
		rec.Knowledge.Files = append(rec.Knowledge.Files, knowledgeFileRecord{
			ID:        f.ID,
			Name:      f.Name,
			MimeType:  f.MimeType,
			Size:      f.Size,
			ObjectKey: f.ObjectKey,
		})
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return kv.Document{}, ErrorCodec(err)
	}

	return kv.Document{
		Key: data.ID,
		Doc: raw,
		Index: map[string]string{
			IDX_UPDATED_AT:  rec.UpdatedAt,
			IDX_IS_ARCHIVED: formatBool(data.IsArchived),
		},
	}, nil
}

func decodeAssistant(raw []byte) (*types.Assistant, error) {
	var rec assistantRecord
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
	archivedAt, err := parseTime(rec.ArchivedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}

	data := &types.Assistant{
		ID:           rec.ID,
		Name:         rec.Name,
		Description:  rec.Description,
		SystemPrompt: rec.SystemPrompt,
		Provider:     rec.Provider,
		Model:        rec.Model,
		Settings:     rec.Settings,
		Tools:        rec.Tools,
		Capabilities: rec.Capabilities,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		Version:      rec.Version,
		Tags:         rec.Tags,
		IsArchived:   rec.IsArchived,
		ArchivedAt:   archivedAt,
		FolderID:     rec.FolderID,
	}

	data.Knowledge = types.Knowledge{
		URLs:           rec.Knowledge.URLs,
		ExtractionMode: rec.Knowledge.ExtractionMode,
	}
	for _, f := range rec.Knowledge.Files {
		data.Knowledge.Files = append(data.Knowledge.Files, types.KnowledgeFile{
			ID:        f.ID,
			Name:      f.Name,
			MimeType:  f.MimeType,
			Size:      f.Size,
			ObjectKey: f.ObjectKey,
		})
	}

	return data, nil
}

type AssistantStore struct {
	CommonFields
}

// NewAssistantStore 创建新的实例
func NewAssistantStore(provider *Provider) *AssistantStore {
	res := &AssistantStore{}
	res.SetProvider(provider)
	res.SetTable(types.TABLE_ASSISTANT)
	return res
}

// Save 写入或覆盖助手记录
func (s *AssistantStore) Save(ctx context.Context, data types.Assistant) error {
	doc, err := encodeAssistant(data)
	if err != nil {
		return err
	}
	return s.DB().Put(ctx, s.GetTable(), doc)
}

// Get 根据ID获取助手记录
func (s *AssistantStore) Get(ctx context.Context, id string) (*types.Assistant, error) {
	raw, err := s.DB().Get(ctx, s.GetTable(), id)
	if err != nil {
		return nil, err
	}
	return decodeAssistant(raw)
}

// Delete 删除助手记录
func (s *AssistantStore) Delete(ctx context.Context, id string) error {
	return s.DB().Delete(ctx, s.GetTable(), id)
}

// List 按更新时间倒序列出助手
func (s *AssistantStore) List(ctx context.Context, archived bool) ([]*types.Assistant, error) {
	docs, err := s.DB().Scan(ctx, s.GetTable(), kv.Query{
		Index:  IDX_IS_ARCHIVED,
		Equals: formatBool(archived),
		SortBy: IDX_UPDATED_AT,
		Desc:   true,
	})
	if err != nil {
		return nil, err
	}

	res := make([]*types.Assistant, 0, len(docs))
	for _, raw := range docs {
		data, err := decodeAssistant(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, data)
	}
	return res, nil
}

func (s *AssistantStore) Total(ctx context.Context) (int64, error) {
	return s.DB().Count(ctx, s.GetTable(), kv.Query{})
}
