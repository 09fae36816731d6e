package ports

import (
	"context"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
)

type INotifier interface {
	// Notify delivers a direct message to one user.
	Notify(ctx context.Context, userID int64, text string) (model.MessageHandle, error)
	// Announce posts to a named dispatch channel and returns a handle
	// so the post can be retracted once the order is claimed.
	Announce(ctx context.Context, channel, text string, orderID int64) (model.MessageHandle, error)
	Update(ctx context.Context, h model.MessageHandle, text string) error
	Retract(ctx context.Context, h model.MessageHandle) error
	Close() error
}
