package kv

import (
	"context"
	"errors"
)

// 底层存储的统一约定，postgres 与内存实现共用
// 存储层自身不感知记录结构，记录编解码由上层 codec 负责
var (
	// ErrNotFound key 不存在
	ErrNotFound = errors.New("kv: key not found")
	// ErrQuotaExceeded 存储空间不足，各实现负责把自身的“空间满”
	// 错误归一化为该值，由上层原样抛给调用方
	ErrQuotaExceeded = errors.New("kv: storage quota exceeded")
)

// Document 一条待写入的记录
// Doc 为编码后的记录内容，Index 为参与等值查询与排序的字段
type Document struct {
	Key   string
	Doc   []byte
	Index map[string]string
}

// Query 索引扫描条件
// Index/Equals 为等值过滤，SortBy 指定排序字段（按字典序），
// 时间戳以可排序的字符串形式写入索引，字典序即时间序
type Query struct {
	Index  string
	Equals string
	SortBy string
	Desc   bool
	Offset uint64
	Limit  uint64
}

// Usage 存储用量，Quota 为 0 表示环境无法给出配额
type Usage struct {
	Usage int64
	Quota int64
}

// Store 以表为维度的事务型 KV 存储
// Transaction 内的全部写入要么同时生效要么同时回滚，
// 嵌套调用复用外层事务
type Store interface {
	Get(ctx context.Context, table, key string) ([]byte, error)
	Put(ctx context.Context, table string, doc Document) error
	Delete(ctx context.Context, table, key string) error
	BulkPut(ctx context.Context, table string, docs []Document) error
	BulkDelete(ctx context.Context, table string, keys []string) error
	Scan(ctx context.Context, table string, q Query) ([][]byte, error)
	Count(ctx context.Context, table string, q Query) (int64, error)
	Clear(ctx context.Context, table string) error
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Estimate(ctx context.Context) (Usage, error)
	Close() error
}
