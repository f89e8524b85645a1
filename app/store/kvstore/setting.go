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
		provider.stores.SettingStore = NewSettingStore(provider)
	})
}

type settingRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt string          `json:"updated_at"`
}

func encodeSetting(data types.Setting) (kv.Document, error) {
	rec := settingRecord{
		Key:       data.Key,
		Value:     data.Value,
		UpdatedAt: formatTime(data.UpdatedAt),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return kv.Document{}, ErrorCodec(err)
	}

	return kv.Document{
		Key: data.Key,
		Doc: raw,
		Index: map[string]string{
			IDX_UPDATED_AT: rec.UpdatedAt,
		},
	}, nil
}

func decodeSetting(raw []byte) (*types.Setting, error) {
	var rec settingRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, ErrorCodec(err)
	}

	updatedAt, err := parseTime(rec.UpdatedAt)
	if err != nil {
		return nil, ErrorCodec(err)
	}

	return &types.Setting{
		Key:       rec.Key,
		Value:     rec.Value,
		UpdatedAt: updatedAt,
	}, nil
}

type SettingStore struct {
	CommonFields
}

// NewSettingStore 创建新的实例
func NewSettingStore(provider *Provider) *SettingStore {
	res := &SettingStore{}
	res.SetProvider(provider)
	res.SetTable(types.TABLE_SETTING)
	return res
}

func (s *SettingStore) Put(ctx context.Context, data types.Setting) error {
	doc, err := encodeSetting(data)
	if err != nil {
		return err
	}
	return s.DB().Put(ctx, s.GetTable(), doc)
}

func (s *SettingStore) Get(ctx context.Context, key string) (*types.Setting, error) {
	raw, err := s.DB().Get(ctx, s.GetTable(), key)
	if err != nil {
		return nil, err
	}
	return decodeSetting(raw)
}

func (s *SettingStore) Delete(ctx context.Context, key string) error {
	return s.DB().Delete(ctx, s.GetTable(), key)
}
