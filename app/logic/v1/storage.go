package v1

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lumina-ai/lumina/app/core"
	"github.com/lumina-ai/lumina/pkg/types"
)

type StorageLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewStorageLogic(ctx context.Context, core *core.Core) *StorageLogic {
	return &StorageLogic{
		ctx:  ctx,
		core: core,
	}
}

func (l *StorageLogic) GetSetting(key string) (*types.Setting, error) {
	data, err := l.core.Store().SettingStore().Get(l.ctx, key)
	if err != nil {
		return nil, wrapStoreError("StorageLogic.GetSetting.SettingStore.Get", err)
	}
	return data, nil
}

func (l *StorageLogic) PutSetting(key string, value json.RawMessage) error {
	err := l.core.Store().SettingStore().Put(l.ctx, types.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return wrapStoreError("StorageLogic.PutSetting.SettingStore.Put", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_SETTING,
		ID:     key,
		Action: types.CHANGE_ACTION_UPDATE,
	})
	return nil
}

func (l *StorageLogic) DeleteSetting(key string) error {
	if err := l.core.Store().SettingStore().Delete(l.ctx, key); err != nil {
		return wrapStoreError("StorageLogic.DeleteSetting.SettingStore.Delete", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Table:  types.TABLE_SETTING,
		ID:     key,
		Action: types.CHANGE_ACTION_DELETE,
	})
	return nil
}

// StorageEstimate 查询底层存储用量
// 环境不支持或查询失败时返回全 0，永远不抛错
func (l *StorageLogic) StorageEstimate() types.StorageUsage {
	usage, err := l.core.Store().DB().Estimate(l.ctx)
	if err != nil {
		slog.Warn("storage estimate unavailable", slog.String("error", err.Error()))
		return types.StorageUsage{}
	}

	l.core.Metrics().StorageBytesSet(usage.Usage, usage.Quota)
	return types.NewStorageUsage(usage.Usage, usage.Quota)
}

// ClearAll 单事务清空全部数据，清掉本地缓存并广播
func (l *StorageLogic) ClearAll() error {
	if err := l.core.Store().ClearAll(l.ctx); err != nil {
		return wrapStoreError("StorageLogic.ClearAll.Provider.ClearAll", err)
	}

	l.core.NotifyChange(l.ctx, types.ChangeEvent{
		Action: types.CHANGE_ACTION_CLEAR,
	})
	return nil
}
