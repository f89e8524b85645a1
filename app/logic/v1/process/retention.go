package process

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/lumina-ai/lumina/pkg/errors"
	"github.com/lumina-ai/lumina/pkg/register"
	"github.com/lumina-ai/lumina/pkg/safe"
	"github.com/lumina-ai/lumina/pkg/types"
)

func init() {
	register.RegisterFunc[*Process](ProcessKey{}, func(provider *Process) {
		cfg := provider.Core().Cfg().Retention
		if cfg.ArchivedDays <= 0 {
			return
		}
		provider.Cron().AddFunc(cfg.CronOrDefault(), func() {
			safe.Run(func() {
				deleted, err := SweepArchivedConversations(context.Background(), provider)
				if err != nil {
					slog.Error("retention sweep failed", slog.String("error", err.Error()))
					return
				}
				if deleted > 0 {
					slog.Info("retention sweep finished", slog.Int("deleted", deleted))
				}
			})
		})
	})
}

// SweepArchivedConversations 硬删除归档超过保留期的会话及其消息
// 保留期从 ArchivedAt 起算，未归档的会话永远不会被清理
func SweepArchivedConversations(ctx context.Context, p *Process) (int, error) {
	cfg := p.Core().Cfg().Retention
	if cfg.ArchivedDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.ArchivedDays)

	list, err := p.Core().Store().ConversationStore().List(ctx, types.ListConversationOptions{
		IncludeArchived: true,
	})
	if err != nil {
		return 0, err
	}

	expired := lo.FilterMap(list, func(data *types.Conversation, _ int) (string, bool) {
		return data.ID, data.IsArchived && !data.ArchivedAt.IsZero() && data.ArchivedAt.Before(cutoff)
	})
	if len(expired) == 0 {
		return 0, nil
	}

	err = p.Core().Store().Transaction(ctx, func(ctx context.Context) error {
		for _, id := range expired {
			if _, err := p.Core().Store().MessageStore().DeleteByConversation(ctx, id); err != nil {
				return err
			}
			if err := p.Core().Store().ConversationStore().Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "process.SweepArchivedConversations.Transaction", errors.ERROR_TRANSACTION_ABORT)
	}

	for _, id := range expired {
		event := types.ChangeEvent{Table: types.TABLE_CONVERSATION, ID: id, Action: types.CHANGE_ACTION_DELETE}
		p.Core().Invalidate(event)
		p.Core().Publish(ctx, event)
	}
	p.Core().Dispatch(types.ChangeEvent{
		Table:     types.TABLE_CONVERSATION,
		Action:    types.CHANGE_ACTION_DELETE,
		Timestamp: time.Now().UnixMilli(),
	})

	return len(expired), nil
}
