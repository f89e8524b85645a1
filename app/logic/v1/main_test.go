package v1_test

import (
	"context"
	"testing"

	"github.com/lumina-ai/lumina/app/core"
)

var ctx = context.Background()

func newTestCore(t *testing.T, opts ...core.Option) *core.Core {
	t.Helper()
	cfg := core.CoreConfig{}
	cfg.Log.Level = "error"

	c := core.MustSetupCore(cfg, opts...)
	t.Cleanup(func() {
		c.Close()
	})
	return c
}
