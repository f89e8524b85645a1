package v1

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/kv"
)

// wrapStoreError 统一底层存储错误的上抛口径：
// 配额不足原样透传，记录不存在带 404 code，其余一律内部错误
func wrapStoreError(trace string, err error) error {
	if stderrors.Is(err, kv.ErrQuotaExceeded) {
		return err
	}
	if stderrors.Is(err, kv.ErrNotFound) {
		return errors.New(trace, errors.ERROR_NOT_FOUND, err).Code(http.StatusNotFound)
	}
	return errors.New(trace, errors.ERROR_INTERNAL, err)
}

// nextUpdateTime 保证 UpdatedAt 严格递增
// 持久化精度为毫秒，先按毫秒截断再比较，
// 同一毫秒内的连续保存在已存储值上加一毫秒
func nextUpdateTime(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
