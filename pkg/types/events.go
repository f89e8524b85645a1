package types

// ChangeEvent 数据变更通知，用于跨实例的缓存失效
// 只承载失效信号，不携带数据本身，底层存储才是事实来源
type ChangeEvent struct {
	Type      string       `json:"type"`
	Table     TableName    `json:"table"`
	ID        string       `json:"id"`
	Action    ChangeAction `json:"action"`
	Timestamp int64        `json:"timestamp"`
}

type ChangeAction string

const (
	CHANGE_ACTION_CREATE  ChangeAction = "create"
	CHANGE_ACTION_UPDATE  ChangeAction = "update"
	CHANGE_ACTION_DELETE  ChangeAction = "delete"
	CHANGE_ACTION_ARCHIVE ChangeAction = "archive"
	CHANGE_ACTION_CLEAR   ChangeAction = "clear"
)

// CHANGE_EVENT_TYPE 广播消息的 type 字段固定值
const CHANGE_EVENT_TYPE = "data_change"

// DataChangeHandler 本地变更回调，本地与远端变更都会触发
type DataChangeHandler func(event ChangeEvent)
