package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU 带 TTL 的读穿缓存，容量满时淘汰最久未使用的条目
// 只做读加速，永远不是事实来源，写路径负责失效
type LRU[T any] struct {
	lru *expirable.LRU[string, T]
}

func New[T any](size int, ttl time.Duration) *LRU[T] {
	return &LRU[T]{
		lru: expirable.NewLRU[string, T](size, nil, ttl),
	}
}

// Get 命中且未过期时返回缓存值，否则由调用方回源
func (c *LRU[T]) Get(id string) (T, bool) {
	return c.lru.Get(id)
}

func (c *LRU[T]) Set(id string, value T) {
	c.lru.Add(id, value)
}

// Delete 无条件移除，写入、删除与远端变更通知都会调用
func (c *LRU[T]) Delete(id string) {
	c.lru.Remove(id)
}

func (c *LRU[T]) Clear() {
	c.lru.Purge()
}

func (c *LRU[T]) Len() int {
	return c.lru.Len()
}
