package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lumina-ai/lumina/pkg/kv/pgkv"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := &CoreConfig{}
	conf.SetConfigBytes(raw)

	if err = toml.Unmarshal(raw, conf); err != nil {
		panic(err)
	}

	return *conf
}

func (c CoreConfig) LoadCustomConfig(cfg any) error {
	if len(c.bytes) == 0 {
		return nil
	}
	if err := toml.Unmarshal(c.bytes, cfg); err != nil {
		return err
	}
	return nil
}

type CustomConfig[T any] struct {
	CustomConfig T `toml:"custom_config"`
}

func NewCustomConfigPayload[T any]() CustomConfig[T] {
	return CustomConfig[T]{}
}

func LoadBaseConfigFromENV() CoreConfig {
	var c CoreConfig
	c.FromENV()
	return c
}

type CoreConfig struct {
	Log           Log                 `toml:"log"`
	Storage       StorageConfig       `toml:"storage"`
	Redis         RedisConfig         `toml:"redis"`
	Broadcast     BroadcastConfig     `toml:"broadcast"`
	Cache         CacheConfig         `toml:"cache"`
	AutoSave      AutoSaveConfig      `toml:"auto_save"`
	Retention     RetentionConfig     `toml:"retention"`
	ObjectStorage ObjectStorageDriver `toml:"object_storage"`

	bytes []byte `toml:"-"`
}

func (c *CoreConfig) SetConfigBytes(raw []byte) {
	c.bytes = raw
}

func (c *CoreConfig) FromENV() {
	c.Log.FromENV()
	c.Storage.FromENV()
	c.Redis.FromENV()
}

// StorageConfig 底层存储选择
// memory 用于测试与单进程场景，postgres 用于常驻部署
type StorageConfig struct {
	Driver string `toml:"driver"`
	// MaxBytes memory 驱动的字节配额，0 表示不限制
	MaxBytes int64       `toml:"max_bytes"`
	Postgres pgkv.Config `toml:"postgres"`
}

const (
	STORAGE_DRIVER_MEMORY   = "memory"
	STORAGE_DRIVER_POSTGRES = "postgres"
)

func (s *StorageConfig) FromENV() {
	s.Driver = os.Getenv("LUMINA_STORAGE_DRIVER")
	s.Postgres.DSN = os.Getenv("LUMINA_POSTGRESQL_DSN")
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

func (r *RedisConfig) FromENV() {
	r.Addr = os.Getenv("LUMINA_REDIS_ADDR")
	r.Password = os.Getenv("LUMINA_REDIS_PASSWORD")
	if dbStr := os.Getenv("LUMINA_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
}

// BroadcastConfig 跨实例变更通知，redis 未配置时自动降级为空实现
type BroadcastConfig struct {
	Channel string `toml:"channel"`
}

func (b BroadcastConfig) ChannelOrDefault() string {
	if b.Channel == "" {
		return "lumina:data_change"
	}
	return b.Channel
}

type CacheConfig struct {
	AssistantSize    int `toml:"assistant_size"`
	ConversationSize int `toml:"conversation_size"`
	TTLSeconds       int `toml:"ttl_seconds"`
}

func (c CacheConfig) AssistantSizeOrDefault() int {
	if c.AssistantSize <= 0 {
		return 100
	}
	return c.AssistantSize
}

func (c CacheConfig) ConversationSizeOrDefault() int {
	if c.ConversationSize <= 0 {
		return 50
	}
	return c.ConversationSize
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// AutoSaveConfig 会话自动保存的合并窗口
type AutoSaveConfig struct {
	WaitMS int `toml:"wait_ms"`
}

func (a AutoSaveConfig) Wait() time.Duration {
	if a.WaitMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.WaitMS) * time.Millisecond
}

// RetentionConfig 归档会话的保留策略，零值表示不清理
type RetentionConfig struct {
	ArchivedDays int    `toml:"archived_days"`
	Cron         string `toml:"cron"`
}

func (r RetentionConfig) CronOrDefault() string {
	if r.Cron == "" {
		return "0 4 * * *"
	}
	return r.Cron
}

type ObjectStorageDriver struct {
	Driver string    `toml:"driver"`
	S3     *S3Config `toml:"s3"`
}

type S3Config struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("LUMINA_LOG_LEVEL")
	l.Path = os.Getenv("LUMINA_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
