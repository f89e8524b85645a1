package kvstore

import (
	"context"

	"github.com/lumina-ai/lumina/app/store"
	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/register"
	"github.com/lumina-ai/lumina/pkg/types"
)

// Provider 在事务型 KV 底座上装配全部 store
// 显式构造、按实例注入，不持有进程级单例状态
type Provider struct {
	db     kv.Store
	stores *Stores
}

type Stores struct {
	store.AssistantStore
	store.AssistantVersionStore
	store.ConversationStore
	store.MessageStore
	store.KnowledgeFileStore
	store.SettingStore
}

type RegisterKey struct{}

// NewProvider 创建并装配 Provider，db 的生命周期由调用方管理
func NewProvider(db kv.Store) *Provider {
	p := &Provider{
		db:     db,
		stores: &Stores{},
	}

	for _, f := range register.ResolveFuncHandlers[*Provider](RegisterKey{}) {
		f(p)
	}

	return p
}

func (p *Provider) DB() kv.Store {
	return p.db
}

// Transaction 事务边界直接托管给底层存储
func (p *Provider) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.db.Transaction(ctx, fn)
}

// ClearAll 在一个事务内清空全部逻辑表
func (p *Provider) ClearAll(ctx context.Context) error {
	return p.db.Transaction(ctx, func(ctx context.Context) error {
		for _, table := range types.AllTables() {
			if err := p.db.Clear(ctx, table.Name()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Provider) AssistantStore() store.AssistantStore {
	return p.stores.AssistantStore
}

func (p *Provider) AssistantVersionStore() store.AssistantVersionStore {
	return p.stores.AssistantVersionStore
}

func (p *Provider) ConversationStore() store.ConversationStore {
	return p.stores.ConversationStore
}

func (p *Provider) MessageStore() store.MessageStore {
	return p.stores.MessageStore
}

func (p *Provider) KnowledgeFileStore() store.KnowledgeFileStore {
	return p.stores.KnowledgeFileStore
}

func (p *Provider) SettingStore() store.SettingStore {
	return p.stores.SettingStore
}
