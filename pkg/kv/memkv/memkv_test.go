package memkv

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-ai/lumina/pkg/kv"
)

func TestStore_CRUD(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "t", "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Put(ctx, "t", kv.Document{Key: "a", Doc: []byte(`{"v":1}`)}))
	doc, err := s.Get(ctx, "t", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), doc)

	require.NoError(t, s.Delete(ctx, "t", "a"))
	_, err = s.Get(ctx, "t", "a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_ScanOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, s.Put(ctx, "t", kv.Document{
			Key: key,
			Doc: []byte(key),
			Index: map[string]string{
				"group":      fmt.Sprintf("g%d", i%2),
				"updated_at": fmt.Sprintf("2026-01-0%dT00:00:00.000Z", i+1),
			},
		}))
	}

	docs, err := s.Scan(ctx, "t", kv.Query{Index: "group", Equals: "g0", SortBy: "updated_at", Desc: true})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "k4", string(docs[0]))
	assert.Equal(t, "k0", string(docs[2]))

	// 分页
	docs, err = s.Scan(ctx, "t", kv.Query{SortBy: "updated_at", Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "k1", string(docs[0]))

	total, err := s.Count(ctx, "t", kv.Query{Index: "group", Equals: "g1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestStore_TransactionRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "t", kv.Document{Key: "keep", Doc: []byte("v1")}))

	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.Put(ctx, "t", kv.Document{Key: "keep", Doc: []byte("v2")}); err != nil {
			return err
		}
		if err := s.Put(ctx, "t", kv.Document{Key: "new", Doc: []byte("x")}); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	// 事务失败后不可观察到任何部分写入
	doc, err := s.Get(ctx, "t", "keep")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(doc))
	_, err = s.Get(ctx, "t", "new")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_QuotaExceeded(t *testing.T) {
	s := NewStore(WithMaxBytes(10))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "t", kv.Document{Key: "a", Doc: []byte("12345")}))
	err := s.Put(ctx, "t", kv.Document{Key: "b", Doc: []byte("123456789")})
	assert.ErrorIs(t, err, kv.ErrQuotaExceeded)

	usage, err := s.Estimate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, usage.Usage)
	assert.EqualValues(t, 10, usage.Quota)
}
