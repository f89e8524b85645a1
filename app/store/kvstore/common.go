package kvstore

import (
	"fmt"
	"time"

	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/types"
)

// 索引字段名，记录编码时写入 kv.Document.Index
const (
	IDX_UPDATED_AT   = "updated_at"
	IDX_CREATED_AT   = "created_at"
	IDX_IS_ARCHIVED  = "is_archived"
	IDX_ASSISTANT_ID = "assistant_id"
	IDX_CONVERSATION = "conversation_id"
	// IDX_RANK 置顶标记拼接更新时间，倒序扫描即为
	// “置顶优先、组内按最近更新”的列表顺序
	IDX_RANK = "rank"
)

// timeLayout 持久化时间格式：UTC 毫秒精度
// 固定宽度保证字典序与时间序一致，索引排序直接可用
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q, %w", s, err)
	}
	return t, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// store 基础设置
type CommonFields struct {
	table    string
	provider *Provider
}

func (c *CommonFields) GetTable() string {
	return c.table
}

func (c *CommonFields) SetTable(table types.TableName) {
	c.table = table.Name()
}

func (c *CommonFields) SetProvider(p *Provider) {
	c.provider = p
}

func (c *CommonFields) DB() kv.Store {
	return c.provider.DB()
}

func ErrorCodec(err error) error {
	return fmt.Errorf("failed to encode/decode record, %w", err)
}
