package debounce

import (
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/lumina-ai/lumina/pkg/safe"
)

// Saver 按 key 合并高频保存请求
// 同一 key 在静默期内的多次触发只保留最后一次的值，
// 保存失败通过 onError 上报，不做自动重试
type Saver[T any] struct {
	wait    time.Duration
	save    func(value T) error
	onError func(key string, err error)
	pending cmap.ConcurrentMap[string, *time.Timer]
	closed  atomic.Bool
}

func NewSaver[T any](wait time.Duration, save func(value T) error, onError func(key string, err error)) *Saver[T] {
	return &Saver[T]{
		wait:    wait,
		save:    save,
		onError: onError,
		pending: cmap.New[*time.Timer](),
	}
}

// Trigger 触发一次延迟保存，覆盖同 key 上未执行的保存
func (s *Saver[T]) Trigger(key string, value T) {
	if s.closed.Load() {
		return
	}

	timer := time.AfterFunc(s.wait, func() {
		s.pending.Remove(key)
		if s.closed.Load() {
			return
		}
		safe.RunWithLog(func() {
			if err := s.save(value); err != nil && s.onError != nil {
				s.onError(key, err)
			}
		}, "debounce.Saver")
	})

	if old, ok := s.pending.Get(key); ok {
		old.Stop()
	}
	s.pending.Set(key, timer)
}

// Cancel 丢弃某个 key 上未执行的保存
func (s *Saver[T]) Cancel(key string) {
	if timer, ok := s.pending.Get(key); ok {
		timer.Stop()
		s.pending.Remove(key)
	}
}

// Close 取消全部未执行的保存，之后的 Trigger 被忽略，可重复调用
func (s *Saver[T]) Close() {
	s.closed.Store(true)
	for item := range s.pending.IterBuffered() {
		item.Val.Stop()
	}
	s.pending.Clear()
}
