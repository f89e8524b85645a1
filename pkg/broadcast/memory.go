package broadcast

import (
	"context"
	"strconv"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/lumina-ai/lumina/pkg/types"
)

// Hub 进程内广播总线，同一进程内的多个存储实例
// （测试、多窗口单进程形态）通过它互相通知
type Hub struct {
	mu      sync.RWMutex
	members map[*Memory]struct{}
}

func NewHub() *Hub {
	return &Hub{
		members: make(map[*Memory]struct{}),
	}
}

// Channel 接入总线，返回一个新的广播端点
func (h *Hub) Channel() *Memory {
	m := &Memory{
		hub:      h,
		handlers: cmap.New[Handler](),
	}
	h.mu.Lock()
	h.members[m] = struct{}{}
	h.mu.Unlock()
	return m
}

func (h *Hub) publish(from *Memory, event types.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for m := range h.members {
		if m == from {
			// 与浏览器 BroadcastChannel 一致，不回投给发送方
			continue
		}
		m.dispatch(event)
	}
}

func (h *Hub) leave(m *Memory) {
	h.mu.Lock()
	delete(h.members, m)
	h.mu.Unlock()
}

// Memory 进程内广播端点
type Memory struct {
	hub      *Hub
	handlers cmap.ConcurrentMap[string, Handler]
	closed   sync.Once
	seq      int64
	seqMu    sync.Mutex
}

func (m *Memory) Publish(ctx context.Context, event types.ChangeEvent) {
	m.hub.publish(m, event)
}

func (m *Memory) Subscribe(handler Handler) func() {
	m.seqMu.Lock()
	m.seq++
	id := m.seq
	m.seqMu.Unlock()

	key := strconv.FormatInt(id, 10)
	m.handlers.Set(key, handler)
	return func() {
		m.handlers.Remove(key)
	}
}

func (m *Memory) Close() error {
	m.closed.Do(func() {
		m.hub.leave(m)
	})
	return nil
}

func (m *Memory) dispatch(event types.ChangeEvent) {
	for item := range m.handlers.IterBuffered() {
		item.Val(event)
	}
}
