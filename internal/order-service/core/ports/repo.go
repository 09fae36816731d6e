package ports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
)

type IDB interface {
	GetPool() *pgxpool.Pool
	IsAlive() error
	Close()
}

type IOrderRepo interface {
	CreateOrder(ctx context.Context, o model.Order) (int64, error)
	GetOrder(ctx context.Context, orderID int64) (model.Order, error)

	// SetStatus moves the order from..to atomically. It reports
	// myerrors.ErrStaleStatus when the row no longer holds from.
	SetStatus(ctx context.Context, orderID int64, from, to model.Status) error

	// AddToPrice applies a signed delta in a single statement, like
	// the wallet and bonus counters.
	AddToPrice(ctx context.Context, orderID int64, delta int) error
	SetPaymentWithBonuses(ctx context.Context, orderID int64, amount int) error
	SoftDelete(ctx context.Context, orderID int64) error

	CreateCurrentOrder(ctx context.Context, co model.CurrentOrder) error
	GetCurrentOrder(ctx context.Context, orderID int64) (model.CurrentOrder, error)
	// GetCurrentOrderByTgID resolves the live order either party is in.
	GetCurrentOrderByTgID(ctx context.Context, tgID int64) (model.CurrentOrder, error)
	UpdateCurrentOrderTimes(ctx context.Context, co model.CurrentOrder) error
	DeleteCurrentOrder(ctx context.Context, orderID int64) error

	AppendHistory(ctx context.Context, e model.HistoryEntry) error
	History(ctx context.Context, orderID int64) ([]model.HistoryEntry, error)

	ActivePreorders(ctx context.Context, now time.Time) ([]model.Order, error)
}

type IPartyRepo interface {
	GetDriver(ctx context.Context, driverID int64) (model.Driver, error)
	GetClient(ctx context.Context, clientID int64) (model.Client, error)
	GetDriverByTgID(ctx context.Context, tgID int64) (model.Driver, error)
	GetClientByTgID(ctx context.Context, tgID int64) (model.Client, error)

	SetDriverShiftStatus(ctx context.Context, driverID int64, st model.DriverShiftStatus) error

	// AddToWallet and AddBonuses apply signed deltas in a single
	// statement so concurrent settlements never lose an update.
	AddToWallet(ctx context.Context, driverID int64, delta int) error
	AddBonuses(ctx context.Context, clientID int64, delta int) error

	BumpDriverTrips(ctx context.Context, driverID int64) error
	BumpClientTrips(ctx context.Context, clientID int64) error

	RateDriver(ctx context.Context, driverID int64, stars int) error
	RateClient(ctx context.Context, clientID int64, stars int) error
}
