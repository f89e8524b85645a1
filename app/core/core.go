package core

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lumina-ai/lumina/app/store/kvstore"
	"github.com/lumina-ai/lumina/pkg/broadcast"
	"github.com/lumina-ai/lumina/pkg/cache"
	"github.com/lumina-ai/lumina/pkg/debounce"
	"github.com/lumina-ai/lumina/pkg/kv"
	"github.com/lumina-ai/lumina/pkg/kv/memkv"
	"github.com/lumina-ai/lumina/pkg/kv/pgkv"
	"github.com/lumina-ai/lumina/pkg/objectstorage/s3"
	"github.com/lumina-ai/lumina/pkg/safe"
	"github.com/lumina-ai/lumina/pkg/types"
	"github.com/lumina-ai/lumina/pkg/utils"
)

// ObjectStorage 知识库文件内容的外置存储
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Core struct {
	cfg CoreConfig

	db     kv.Store
	stores func() *kvstore.Provider

	assistantCache    *cache.LRU[types.Assistant]
	conversationCache *cache.LRU[types.Conversation]

	broadcaster  broadcast.Broadcaster
	unsubscribe  func()
	listeners    cmap.ConcurrentMap[string, types.DataChangeHandler]
	fileStorage  ObjectStorage
	autoSave     *debounce.Saver[types.Conversation]
	autoSaveOnce sync.Once

	metrics   *Metrics
	closeOnce sync.Once
}

type Option func(*Core)

// WithStore 注入底层存储，测试与嵌入场景使用
func WithStore(db kv.Store) Option {
	return func(c *Core) {
		c.db = db
	}
}

// WithBroadcaster 注入变更通知通道，测试与嵌入场景使用
func WithBroadcaster(b broadcast.Broadcaster) Option {
	return func(c *Core) {
		c.broadcaster = b
	}
}

func MustSetupCore(cfg CoreConfig, opts ...Option) *Core {
	{
		var writer io.Writer = os.Stdout
		if cfg.Log.Path != "" {
			writer = &lumberjack.Logger{
				Filename:   cfg.Log.Path,
				MaxSize:    500, // megabytes
				MaxBackups: 3,
				MaxAge:     28,   //days
				Compress:   true, // disabled by default
			}
		}
		l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: cfg.Log.SlogLevel(),
		}))
		slog.SetDefault(l)
	}

	core := &Core{
		cfg:               cfg,
		metrics:           NewMetrics("lumina", "core"),
		assistantCache:    cache.New[types.Assistant](cfg.Cache.AssistantSizeOrDefault(), cfg.Cache.TTL()),
		conversationCache: cache.New[types.Conversation](cfg.Cache.ConversationSizeOrDefault(), cfg.Cache.TTL()),
		listeners:         cmap.New[types.DataChangeHandler](),
	}

	for _, opt := range opts {
		opt(core)
	}

	if core.db == nil {
		core.db = setupKVStore(cfg.Storage)
	}
	provider := kvstore.NewProvider(core.db)
	core.stores = func() *kvstore.Provider {
		return provider
	}

	if core.broadcaster == nil {
		core.broadcaster = setupBroadcaster(cfg, core.metrics)
	}
	core.unsubscribe = core.broadcaster.Subscribe(core.handleRemoteChange)

	core.fileStorage = setupObjectStorage(cfg.ObjectStorage)

	return core
}

func setupKVStore(cfg StorageConfig) kv.Store {
	switch cfg.Driver {
	case STORAGE_DRIVER_POSTGRES:
		return pgkv.MustSetup(cfg.Postgres, types.AllTableNames())
	case STORAGE_DRIVER_MEMORY, "":
		return memkv.NewStore(memkv.WithMaxBytes(cfg.MaxBytes))
	default:
		panic("unknown storage driver: " + cfg.Driver)
	}
}

// setupBroadcaster redis 未配置时降级为空实现，单实例语义不受影响
func setupBroadcaster(cfg CoreConfig, m *Metrics) broadcast.Broadcaster {
	if cfg.Redis.Addr == "" {
		slog.Info("broadcast disabled, redis is not configured")
		return broadcast.NewNop()
	}

	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	b := broadcast.NewRedis(cli, cfg.Broadcast.ChannelOrDefault())
	b.OnDropped = func(reason string) {
		m.BroadcastDroppedInc(reason)
	}
	return b
}

func setupObjectStorage(cfg ObjectStorageDriver) ObjectStorage {
	switch cfg.Driver {
	case "s3":
		return s3.NewS3Client(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKey, cfg.S3.SecretKey)
	default:
		return nil
	}
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) Store() *kvstore.Provider {
	return s.stores()
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

// FileStorage 未配置对象存储时返回 nil，文件内容随记录内联
func (s *Core) FileStorage() ObjectStorage {
	return s.fileStorage
}

func (s *Core) AssistantCache() *cache.LRU[types.Assistant] {
	return s.assistantCache
}

func (s *Core) ConversationCache() *cache.LRU[types.Conversation] {
	return s.conversationCache
}

// AutoSaver 会话自动保存的合并器，首次调用时创建
// save 在合并窗口结束后于后台 goroutine 执行
func (s *Core) AutoSaver(save func(data types.Conversation) error) *debounce.Saver[types.Conversation] {
	s.autoSaveOnce.Do(func() {
		s.autoSave = debounce.NewSaver(s.cfg.AutoSave.Wait(), func(data types.Conversation) error {
			s.metrics.AutoSaveInc()
			return save(data)
		}, func(key string, err error) {
			slog.Error("auto save conversation failed", slog.String("conversation_id", key), slog.String("error", err.Error()))
		})
	})
	return s.autoSave
}

// OnDataChange 注册数据变更回调，本地写入与远端通知都会触发
// 返回取消函数，重复调用取消函数无副作用
func (s *Core) OnDataChange(handler types.DataChangeHandler) func() {
	id := utils.GenUniqIDStr()
	s.listeners.Set(id, handler)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listeners.Remove(id)
		})
	}
}

// NotifyChange 本地写入完成后的统一出口：
// 失效本地缓存、广播给其他实例、触发本地回调
func (s *Core) NotifyChange(ctx context.Context, event types.ChangeEvent) {
	s.Invalidate(event)
	s.Publish(ctx, event)
	s.Dispatch(event)
}

// Invalidate 按变更内容失效本地缓存
func (s *Core) Invalidate(event types.ChangeEvent) {
	if event.Action == types.CHANGE_ACTION_CLEAR {
		s.assistantCache.Clear()
		s.conversationCache.Clear()
		return
	}

	switch event.Table {
	case types.TABLE_ASSISTANT:
		s.assistantCache.Delete(event.ID)
	case types.TABLE_CONVERSATION:
		s.conversationCache.Delete(event.ID)
	}
}

// Publish 尽力而为地广播变更，失败不影响调用方
func (s *Core) Publish(ctx context.Context, event types.ChangeEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Type == "" {
		event.Type = types.CHANGE_EVENT_TYPE
	}
	s.metrics.BroadcastPublishInc()
	s.broadcaster.Publish(ctx, event)
}

// Dispatch 触发本地注册的变更回调，回调内 panic 不外溢
func (s *Core) Dispatch(event types.ChangeEvent) {
	for item := range s.listeners.IterBuffered() {
		handler := item.Val
		safe.Run(func() {
			handler(event)
		})
	}
}

// handleRemoteChange 其他实例的变更：失效缓存并转发给本地回调，
// 不回写存储也不再次广播
func (s *Core) handleRemoteChange(event types.ChangeEvent) {
	s.metrics.BroadcastReceiveInc()
	s.Invalidate(event)
	s.Dispatch(event)
}

// Close 释放全部资源，可重复调用
func (s *Core) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.autoSave != nil {
			s.autoSave.Close()
		}
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		if cerr := s.broadcaster.Close(); cerr != nil {
			err = cerr
		}
		s.listeners.Clear()
		s.assistantCache.Clear()
		s.conversationCache.Clear()
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
