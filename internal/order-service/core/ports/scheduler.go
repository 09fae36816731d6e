package ports

import (
	"context"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/scheduler"
)

type IScheduler interface {
	Add(ctx context.Context, key scheduler.JobKey, runAt time.Time, handler string, args any) error
	Remove(ctx context.Context, key scheduler.JobKey) error
	Get(ctx context.Context, key scheduler.JobKey) (scheduler.Job, error)
}
