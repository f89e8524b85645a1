package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumina-ai/lumina/pkg/safe"
	"github.com/lumina-ai/lumina/pkg/types"
	"github.com/lumina-ai/lumina/pkg/utils"
)

// envelope 在变更事件外附加来源实例标识，接收方跳过自己发出的消息
type envelope struct {
	Origin string            `json:"origin"`
	Event  types.ChangeEvent `json:"event"`
}

// Redis 基于 redis pub/sub 的跨实例广播
type Redis struct {
	cli      *redis.Client
	channel  string
	origin   string
	handlers cmap.ConcurrentMap[string, Handler]
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	closed   sync.Once

	// OnDropped 发送或解码失败时的诊断回调，可为空
	OnDropped func(reason string)
}

func NewRedis(cli *redis.Client, channel string) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Redis{
		cli:     cli,
		channel: channel,
		// 进程级随机令牌，必须跨进程唯一
		origin:   utils.RandomStr(32),
		handlers: cmap.New[Handler](),
		pubsub:   cli.Subscribe(ctx, channel),
		cancel:   cancel,
	}

	go safe.RunWithLog(func() {
		b.receive()
	}, "broadcast.Redis.receive")

	return b
}

func (b *Redis) receive() {
	for msg := range b.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Warn("broadcast message decode failed", slog.String("channel", b.channel), slog.Any("error", err))
			b.dropped("decode")
			continue
		}
		if env.Origin == b.origin {
			continue
		}
		for item := range b.handlers.IterBuffered() {
			item.Val(env.Event)
		}
	}
}

func (b *Redis) Publish(ctx context.Context, event types.ChangeEvent) {
	raw, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		b.dropped("encode")
		return
	}
	if err := b.cli.Publish(ctx, b.channel, raw).Err(); err != nil {
		slog.Warn("broadcast publish failed",
			slog.String("channel", b.channel),
			slog.String("table", string(event.Table)),
			slog.Any("error", err))
		b.dropped("publish")
	}
}

func (b *Redis) Subscribe(handler Handler) func() {
	id := utils.GenUniqIDStr()
	b.handlers.Set(id, handler)
	return func() {
		b.handlers.Remove(id)
	}
}

func (b *Redis) Close() error {
	b.closed.Do(func() {
		b.cancel()
		_ = b.pubsub.Close()
	})
	return nil
}

func (b *Redis) dropped(reason string) {
	if b.OnDropped != nil {
		b.OnDropped(reason)
	}
}
