package pgkv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumina-ai/lumina/pkg/kv"
)

func init() {
	sq.StatementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Store postgres 实现
// 每张逻辑表对应一张 (key, doc jsonb, idx jsonb) 物理表，
// 等值查询与排序都走 idx 字段
type Store struct {
	master *sqlx.DB
	tables []string
	// maxBytes 配置层给出的配额，postgres 本身不报告上限
	maxBytes int64
}

type ConnectConfig interface {
	FormatDSN() string
}

type Config struct {
	DSN string `toml:"dsn"`
	// MaxBytes 用量估算时上报的配额，0 表示未知
	MaxBytes int64 `toml:"max_bytes"`
}

func (c Config) FormatDSN() string {
	return c.DSN
}

// MustSetup 建立数据库连接，tables 为本实例管理的全部物理表名
func MustSetup(conf Config, tables []string) *Store {
	engine := sqlx.MustOpen("postgres", conf.FormatDSN())

	return &Store{
		master:   engine,
		tables:   tables,
		maxBytes: conf.MaxBytes,
	}
}

// Install 初始化所有数据表
func (s *Store) Install(ctx context.Context) error {
	for _, table := range s.tables {
		if _, err := s.master.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, doc JSONB NOT NULL, idx JSONB NOT NULL DEFAULT '{}'::jsonb)`, table)); err != nil {
			return err
		}
		if _, err := s.master.ExecContext(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_idx_gin ON %s USING gin (idx)`, table, table)); err != nil {
			return err
		}
	}
	return nil
}

type TransactionKey struct{}

func (s *Store) getTxFromCtx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(TransactionKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if s.getTxFromCtx(ctx) != nil {
		return fn(ctx)
	}

	var (
		tx  *sqlx.Tx
		err error
	)
	if tx, err = s.master.BeginTxx(ctx, nil); err != nil {
		return normalizeError(err)
	}

	defer func() {
		if r := recover(); r != nil || err != nil {
			slog.Error("Transaction rollbacked", slog.Any("recover", r), slog.Any("error", err))
			_ = tx.Rollback()
			return
		}
	}()

	if err = fn(context.WithValue(ctx, TransactionKey{}, tx)); err != nil {
		return normalizeError(err)
	}

	if err = tx.Commit(); err != nil {
		return normalizeError(err)
	}
	return nil
}

type executor interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type dbWithContext struct {
	db  *sqlx.DB
	ctx context.Context
}

func (d *dbWithContext) Get(dest interface{}, query string, args ...interface{}) error {
	return d.db.GetContext(d.ctx, dest, query, args...)
}

func (d *dbWithContext) Select(dest interface{}, query string, args ...interface{}) error {
	return d.db.SelectContext(d.ctx, dest, query, args...)
}

func (d *dbWithContext) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.db.ExecContext(d.ctx, query, args...)
}

func (s *Store) executor(ctx context.Context) executor {
	if tx := s.getTxFromCtx(ctx); tx != nil {
		return tx
	}
	return &dbWithContext{db: s.master, ctx: ctx}
}

func errorSqlBuild(err error) error {
	return fmt.Errorf("failed to build sql query, %w", err)
}

// normalizeError 把驱动错误归一化为 kv 层约定
// pq 错误类 53 (insufficient resources) 含磁盘空间不足
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return kv.ErrNotFound
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Class() == "53" {
		return kv.ErrQuotaExceeded
	}
	return err
}

func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	queryString, args, err := sq.Select("doc").From(table).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return nil, errorSqlBuild(err)
	}

	var doc []byte
	if err = s.executor(ctx).Get(&doc, queryString, args...); err != nil {
		return nil, normalizeError(err)
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, table string, doc kv.Document) error {
	return s.BulkPut(ctx, table, []kv.Document{doc})
}

func (s *Store) BulkPut(ctx context.Context, table string, docs []kv.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := sq.Insert(table).Columns("key", "doc", "idx")
	for _, doc := range docs {
		query = query.Values(doc.Key, doc.Doc, indexJSON(doc.Index))
	}
	query = query.Suffix("ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, idx = EXCLUDED.idx")

	queryString, args, err := query.ToSql()
	if err != nil {
		return errorSqlBuild(err)
	}

	_, err = s.executor(ctx).Exec(queryString, args...)
	return normalizeError(err)
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	return s.BulkDelete(ctx, table, []string{key})
}

func (s *Store) BulkDelete(ctx context.Context, table string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	queryString, args, err := sq.Delete(table).Where(sq.Eq{"key": keys}).ToSql()
	if err != nil {
		return errorSqlBuild(err)
	}

	_, err = s.executor(ctx).Exec(queryString, args...)
	return normalizeError(err)
}

func (s *Store) Scan(ctx context.Context, table string, q kv.Query) ([][]byte, error) {
	query := sq.Select("doc").From(table)
	if q.Index != "" {
		query = query.Where(sq.Expr("idx->>? = ?", q.Index, q.Equals))
	}
	if q.SortBy != "" {
		// 排序字段来自 codec 内部常量，不接收外部输入
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		query = query.OrderBy(fmt.Sprintf("idx->>'%s' %s", q.SortBy, dir), "key "+dir)
	} else {
		query = query.OrderBy("key")
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, errorSqlBuild(err)
	}

	var docs [][]byte
	if err = s.executor(ctx).Select(&docs, queryString, args...); err != nil {
		return nil, normalizeError(err)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, table string, q kv.Query) (int64, error) {
	query := sq.Select("COUNT(*)").From(table)
	if q.Index != "" {
		query = query.Where(sq.Expr("idx->>? = ?", q.Index, q.Equals))
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, errorSqlBuild(err)
	}

	var total int64
	if err = s.executor(ctx).Get(&total, queryString, args...); err != nil {
		return 0, normalizeError(err)
	}
	return total, nil
}

func (s *Store) Clear(ctx context.Context, table string) error {
	queryString, args, err := sq.Delete(table).ToSql()
	if err != nil {
		return errorSqlBuild(err)
	}

	_, err = s.executor(ctx).Exec(queryString, args...)
	return normalizeError(err)
}

func (s *Store) Estimate(ctx context.Context) (kv.Usage, error) {
	var size int64
	if err := s.executor(ctx).Get(&size, "SELECT pg_database_size(current_database())"); err != nil {
		return kv.Usage{}, normalizeError(err)
	}
	return kv.Usage{Usage: size, Quota: s.maxBytes}, nil
}

func (s *Store) Close() error {
	return s.master.Close()
}

func indexJSON(index map[string]string) []byte {
	if len(index) == 0 {
		return []byte("{}")
	}
	// map[string]string 的 JSON 编码不会失败
	raw, _ := json.Marshal(index)
	return raw
}
