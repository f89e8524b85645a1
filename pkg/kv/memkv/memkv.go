package memkv

import (
	"context"
	"sort"
	"sync"

	"github.com/lumina-ai/lumina/pkg/kv"
)

// Store 内存实现，主要服务于测试与嵌入式单进程场景
// 事务采用快照回滚：事务期间持有全局写锁，失败时整体恢复快照，
// 保证与 postgres 实现一致的 all-or-nothing 语义
type Store struct {
	mu        sync.Mutex
	tables    map[string]map[string]record
	usedBytes int64
	// maxBytes 模拟宿主环境配额，0 表示不限制
	maxBytes int64
}

type record struct {
	doc   []byte
	index map[string]string
}

type Option func(*Store)

// WithMaxBytes 设置字节配额，写入超出时返回 kv.ErrQuotaExceeded
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		s.maxBytes = n
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string]map[string]record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	return ctx != nil && ctx.Value(txKey{}) != nil
}

func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		// 事务体内已持有锁
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, snapshotBytes := s.snapshotLocked()

	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		s.tables = snapshot
		s.usedBytes = snapshotBytes
		return err
	}
	return nil
}

// snapshotLocked 拷贝表结构，记录本身不可变所以仅浅拷贝
func (s *Store) snapshotLocked() (map[string]map[string]record, int64) {
	snapshot := make(map[string]map[string]record, len(s.tables))
	for name, table := range s.tables {
		cp := make(map[string]record, len(table))
		for k, v := range table {
			cp[k] = v
		}
		snapshot[name] = cp
	}
	return snapshot, s.usedBytes
}

func (s *Store) table(name string) map[string]record {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[string]record)
		s.tables[name] = t
	}
	return t
}

func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	defer s.lock(ctx)()

	rec, ok := s.table(table)[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return rec.doc, nil
}

func (s *Store) Put(ctx context.Context, table string, doc kv.Document) error {
	defer s.lock(ctx)()
	return s.putLocked(table, doc)
}

func (s *Store) putLocked(table string, doc kv.Document) error {
	t := s.table(table)

	delta := int64(len(doc.Doc))
	if old, ok := t[doc.Key]; ok {
		delta -= int64(len(old.doc))
	}
	if s.maxBytes > 0 && s.usedBytes+delta > s.maxBytes {
		return kv.ErrQuotaExceeded
	}

	index := make(map[string]string, len(doc.Index))
	for k, v := range doc.Index {
		index[k] = v
	}
	t[doc.Key] = record{doc: doc.Doc, index: index}
	s.usedBytes += delta
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	defer s.lock(ctx)()
	return s.deleteLocked(table, key)
}

func (s *Store) deleteLocked(table, key string) error {
	t := s.table(table)
	if old, ok := t[key]; ok {
		s.usedBytes -= int64(len(old.doc))
		delete(t, key)
	}
	return nil
}

func (s *Store) BulkPut(ctx context.Context, table string, docs []kv.Document) error {
	defer s.lock(ctx)()

	for _, doc := range docs {
		if err := s.putLocked(table, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) BulkDelete(ctx context.Context, table string, keys []string) error {
	defer s.lock(ctx)()

	for _, key := range keys {
		if err := s.deleteLocked(table, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, table string, q kv.Query) ([][]byte, error) {
	defer s.lock(ctx)()

	matched := s.matchLocked(table, q)

	sort.Slice(matched, func(i, j int) bool {
		var a, b string
		if q.SortBy != "" {
			a, b = matched[i].rec.index[q.SortBy], matched[j].rec.index[q.SortBy]
		}
		if a == b {
			a, b = matched[i].key, matched[j].key
		}
		if q.Desc {
			return a > b
		}
		return a < b
	})

	if q.Offset > 0 {
		if q.Offset >= uint64(len(matched)) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < uint64(len(matched)) {
		matched = matched[:q.Limit]
	}

	res := make([][]byte, 0, len(matched))
	for _, m := range matched {
		res = append(res, m.rec.doc)
	}
	return res, nil
}

func (s *Store) Count(ctx context.Context, table string, q kv.Query) (int64, error) {
	defer s.lock(ctx)()
	return int64(len(s.matchLocked(table, q))), nil
}

type keyed struct {
	key string
	rec record
}

func (s *Store) matchLocked(table string, q kv.Query) []keyed {
	var matched []keyed
	for key, rec := range s.table(table) {
		if q.Index != "" && rec.index[q.Index] != q.Equals {
			continue
		}
		matched = append(matched, keyed{key: key, rec: rec})
	}
	return matched
}

func (s *Store) Clear(ctx context.Context, table string) error {
	defer s.lock(ctx)()

	for _, rec := range s.table(table) {
		s.usedBytes -= int64(len(rec.doc))
	}
	delete(s.tables, table)
	return nil
}

func (s *Store) Estimate(ctx context.Context) (kv.Usage, error) {
	defer s.lock(ctx)()
	return kv.Usage{Usage: s.usedBytes, Quota: s.maxBytes}, nil
}

func (s *Store) Close() error {
	return nil
}
