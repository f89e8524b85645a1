package types

const (
	NO_PAGINATION = 0
)

// StorageUsage 宿主环境报告的存储用量，单位字节
// 环境不支持查询时全部为 0，永远不作为错误处理
type StorageUsage struct {
	Usage       int64   `json:"usage"`
	Quota       int64   `json:"quota"`
	UsedPercent float64 `json:"used_percent"`
}

func NewStorageUsage(usage, quota int64) StorageUsage {
	u := StorageUsage{Usage: usage, Quota: quota}
	if quota > 0 {
		u.UsedPercent = float64(usage) / float64(quota) * 100
	}
	return u
}
