package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "lumina_"

const (
	TABLE_ASSISTANT         = TableName("assistant")
	TABLE_ASSISTANT_VERSION = TableName("assistant_version")
	TABLE_CONVERSATION      = TableName("conversation")
	TABLE_MESSAGE           = TableName("message")
	TABLE_KNOWLEDGE_FILE    = TableName("knowledge_file")
	TABLE_SETTING           = TableName("setting")
)

// AllTables 返回当前存储层管理的全部逻辑表
func AllTables() []TableName {
	return []TableName{
		TABLE_ASSISTANT,
		TABLE_ASSISTANT_VERSION,
		TABLE_CONVERSATION,
		TABLE_MESSAGE,
		TABLE_KNOWLEDGE_FILE,
		TABLE_SETTING,
	}
}

// AllTableNames 带前缀的物理表名，供底层存储初始化使用
func AllTableNames() []string {
	var res []string
	for _, t := range AllTables() {
		res = append(res, t.Name())
	}
	return res
}
