package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/myerrors"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

type OrderRepo struct {
	db *DB
}

func NewOrderRepo(db *DB) ports.IOrderRepo {
	return &OrderRepo{db: db}
}

func (or *OrderRepo) CreateOrder(ctx context.Context, o model.Order) (int64, error) {
	q := `
	INSERT INTO orders
		(client_id, submission_time, start_addr, start_coords, finish_addr, finish_coords,
		 distance_km, trip_seconds, price, payment_method, payment_with_bonuses, comment,
		 status, fare_type, is_deleted)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false)
	RETURNING id
	`
	var subAt *time.Time
	if !o.SubmissionTime.IsZero() {
		subAt = &o.SubmissionTime
	}
	var id int64
	err := or.db.pool.QueryRow(ctx, q,
		o.ClientID, subAt, o.Start, o.StartCoords, o.Finish, o.FinishCoords,
		o.DistanceKm, int64(o.TripTime.Seconds()), o.Price, o.PaymentMethod,
		o.PaymentWithBonuses, o.Comment, int(o.Status), int(o.FareType),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (or *OrderRepo) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	q := `
	SELECT
		id, client_id, submission_time, start_addr, start_coords, finish_addr, finish_coords,
		distance_km, trip_seconds, price, payment_method, payment_with_bonuses, comment,
		status, fare_type, is_deleted
	FROM orders
	WHERE id = $1 AND is_deleted = false
	`
	var (
		o       model.Order
		subAt   *time.Time
		tripSec int64
		status  int
		fare    int
	)
	err := or.db.pool.QueryRow(ctx, q, orderID).Scan(
		&o.ID, &o.ClientID, &subAt, &o.Start, &o.StartCoords, &o.Finish, &o.FinishCoords,
		&o.DistanceKm, &tripSec, &o.Price, &o.PaymentMethod, &o.PaymentWithBonuses,
		&o.Comment, &status, &fare, &o.IsDeleted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, myerrors.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	if subAt != nil {
		o.SubmissionTime = *subAt
	}
	o.TripTime = time.Duration(tripSec) * time.Second
	o.Status = model.Status(status)
	o.FareType = model.FareType(fare)
	return o, nil
}

// SetStatus is a compare-and-swap. Zero rows affected means someone
// else moved the order first.
func (or *OrderRepo) SetStatus(ctx context.Context, orderID int64, from, to model.Status) error {
	q := `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2 AND is_deleted = false`

	tag, err := or.db.pool.Exec(ctx, q, orderID, int(from), int(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrStaleStatus
	}
	return nil
}

// AddToPrice lets the database do the arithmetic so two surcharges
// landing together both count.
func (or *OrderRepo) AddToPrice(ctx context.Context, orderID int64, delta int) error {
	_, err := or.db.pool.Exec(ctx,
		`UPDATE orders SET price = price + $2 WHERE id = $1`, orderID, delta)
	return err
}

func (or *OrderRepo) SetPaymentWithBonuses(ctx context.Context, orderID int64, amount int) error {
	_, err := or.db.pool.Exec(ctx,
		`UPDATE orders SET payment_with_bonuses = $2 WHERE id = $1`, orderID, amount)
	return err
}

func (or *OrderRepo) SoftDelete(ctx context.Context, orderID int64) error {
	_, err := or.db.pool.Exec(ctx, `UPDATE orders SET is_deleted = true WHERE id = $1`, orderID)
	return err
}

func (or *OrderRepo) CreateCurrentOrder(ctx context.Context, co model.CurrentOrder) error {
	q := `
	INSERT INTO current_orders
		(order_id, driver_id, driver_tg_id, driver_username, driver_location, driver_coords,
		 client_id, client_tg_id, client_username, travel_seconds,
		 scheduled_arrival, actual_arrival, trip_start, scheduled_finish, actual_finish)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := or.db.pool.Exec(ctx, q,
		co.OrderID, co.DriverID, co.DriverTgID, co.DriverUsername, co.DriverLocation, co.DriverCoords,
		co.ClientID, co.ClientTgID, co.ClientUsername, int64(co.TravelTimeToClient.Seconds()),
		nullTime(co.ScheduledArrival), nullTime(co.ActualArrival), nullTime(co.TripStart),
		nullTime(co.ScheduledFinish), nullTime(co.ActualFinish),
	)
	return err
}

const currentOrderColumns = `
		order_id, driver_id, driver_tg_id, driver_username, driver_location, driver_coords,
		client_id, client_tg_id, client_username, travel_seconds,
		scheduled_arrival, actual_arrival, trip_start, scheduled_finish, actual_finish`

func scanCurrentOrder(row pgx.Row) (model.CurrentOrder, error) {
	var (
		co        model.CurrentOrder
		travelSec int64
		times     [5]*time.Time
	)
	err := row.Scan(
		&co.OrderID, &co.DriverID, &co.DriverTgID, &co.DriverUsername, &co.DriverLocation, &co.DriverCoords,
		&co.ClientID, &co.ClientTgID, &co.ClientUsername, &travelSec,
		&times[0], &times[1], &times[2], &times[3], &times[4],
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CurrentOrder{}, myerrors.ErrNoCurrentOrder
	}
	if err != nil {
		return model.CurrentOrder{}, err
	}
	co.TravelTimeToClient = time.Duration(travelSec) * time.Second
	co.ScheduledArrival = deref(times[0])
	co.ActualArrival = deref(times[1])
	co.TripStart = deref(times[2])
	co.ScheduledFinish = deref(times[3])
	co.ActualFinish = deref(times[4])
	return co, nil
}

func (or *OrderRepo) GetCurrentOrder(ctx context.Context, orderID int64) (model.CurrentOrder, error) {
	q := `SELECT` + currentOrderColumns + `
	FROM current_orders
	WHERE order_id = $1
	`
	return scanCurrentOrder(or.db.pool.QueryRow(ctx, q, orderID))
}

func (or *OrderRepo) GetCurrentOrderByTgID(ctx context.Context, tgID int64) (model.CurrentOrder, error) {
	q := `SELECT` + currentOrderColumns + `
	FROM current_orders
	WHERE client_tg_id = $1 OR driver_tg_id = $1
	ORDER BY order_id DESC
	LIMIT 1
	`
	return scanCurrentOrder(or.db.pool.QueryRow(ctx, q, tgID))
}

func (or *OrderRepo) UpdateCurrentOrderTimes(ctx context.Context, co model.CurrentOrder) error {
	q := `
	UPDATE current_orders SET
		scheduled_arrival = $2,
		actual_arrival    = $3,
		trip_start        = $4,
		scheduled_finish  = $5,
		actual_finish     = $6
	WHERE order_id = $1
	`
	tag, err := or.db.pool.Exec(ctx, q, co.OrderID,
		nullTime(co.ScheduledArrival), nullTime(co.ActualArrival), nullTime(co.TripStart),
		nullTime(co.ScheduledFinish), nullTime(co.ActualFinish))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrNoCurrentOrder
	}
	return nil
}

func (or *OrderRepo) DeleteCurrentOrder(ctx context.Context, orderID int64) error {
	_, err := or.db.pool.Exec(ctx, `DELETE FROM current_orders WHERE order_id = $1`, orderID)
	return err
}

func (or *OrderRepo) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	q := `
	INSERT INTO order_history (order_id, driver_id, label, reason, order_time)
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err := or.db.pool.Exec(ctx, q, e.OrderID, e.DriverID, e.Label, e.Reason, e.OrderTime)
	return err
}

func (or *OrderRepo) History(ctx context.Context, orderID int64) ([]model.HistoryEntry, error) {
	q := `
	SELECT id, order_id, driver_id, label, reason, order_time
	FROM order_history
	WHERE order_id = $1
	ORDER BY order_time, id
	`
	rows, err := or.db.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.DriverID, &e.Label, &e.Reason, &e.OrderTime); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (or *OrderRepo) ActivePreorders(ctx context.Context, now time.Time) ([]model.Order, error) {
	q := `
	SELECT id FROM orders
	WHERE status = $1 AND submission_time > $2 AND is_deleted = false
	`
	rows, err := or.db.pool.Query(ctx, q, int(model.StatusPreorderAccepted), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		o, err := or.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
