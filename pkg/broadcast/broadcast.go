package broadcast

import (
	"context"

	"github.com/lumina-ai/lumina/pkg/types"
)

// Handler 收到其他执行实例的变更通知时触发
type Handler func(event types.ChangeEvent)

// Broadcaster 跨实例变更通知通道
// 只承载缓存失效信号，不做合并、重放或冲突解决；
// 发送与接收失败一律吞掉（记日志与指标），底层存储才是事实来源
type Broadcaster interface {
	// Publish 尽力而为地广播变更，失败不向调用方传播
	Publish(ctx context.Context, event types.ChangeEvent)
	// Subscribe 注册接收回调，返回取消函数
	Subscribe(handler Handler) func()
	// Close 释放通道，可重复调用
	Close() error
}

// Nop 广播机制不可用时的降级实现，单实例运行不受影响
type Nop struct{}

func NewNop() *Nop {
	return &Nop{}
}

func (n *Nop) Publish(ctx context.Context, event types.ChangeEvent) {}

func (n *Nop) Subscribe(handler Handler) func() {
	return func() {}
}

func (n *Nop) Close() error {
	return nil
}
