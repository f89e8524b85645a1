package types

import "time"

// Assistant 助手定义，包含模型、提示词、工具与知识库配置
// ID 创建后不可变更，UpdatedAt 在每次持久化修改时严格递增
type Assistant struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	SystemPrompt string           `json:"system_prompt"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	Settings     ModelSettings    `json:"settings"`
	Tools        []ToolDefinition `json:"tools"`
	Knowledge    Knowledge        `json:"knowledge"`
	Capabilities Capabilities     `json:"capabilities"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	// Version 仅通过显式的版本快照操作递增，普通保存不修改
	Version    int       `json:"version"`
	Tags       []string  `json:"tags"`
	IsArchived bool      `json:"is_archived"`
	ArchivedAt time.Time `json:"archived_at"`
	FolderID   string    `json:"folder_id"`
}

type ModelSettings struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Parameters JSON Schema 描述的入参定义，本层不做解析
	Parameters string `json:"parameters"`
}

type Knowledge struct {
	Files          []KnowledgeFile `json:"files"`
	URLs           []string        `json:"urls"`
	ExtractionMode ExtractionMode  `json:"extraction_mode"`
}

type ExtractionMode string

const (
	EXTRACTION_MODE_FULL    ExtractionMode = "full"
	EXTRACTION_MODE_SUMMARY ExtractionMode = "summary"
)

// KnowledgeFile 知识库文件，Content 只存在于内存中
// 持久化时仅保留元信息，文件内容按配置转存对象存储
type KnowledgeFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
	// ObjectKey 对象存储中的位置，未转存时为空
	ObjectKey string `json:"object_key"`
}

type Capabilities struct {
	WebSearch       bool `json:"web_search"`
	FileAnalysis    bool `json:"file_analysis"`
	ImageGeneration bool `json:"image_generation"`
	CodeInterpreter bool `json:"code_interpreter"`
}

// AssistantVersion 助手的版本快照，由显式的快照操作产生
type AssistantVersion struct {
	ID          string    `json:"id"`
	AssistantID string    `json:"assistant_id"`
	Version     int       `json:"version"`
	Snapshot    Assistant `json:"snapshot"`
	CreatedAt   time.Time `json:"created_at"`
}

// CascadeDeleteResult 级联删除各类记录的数量，供调用方展示
type CascadeDeleteResult struct {
	Conversations  int `json:"conversations"`
	Messages       int `json:"messages"`
	KnowledgeFiles int `json:"knowledge_files"`
	Versions       int `json:"versions"`
}
