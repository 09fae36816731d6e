package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/myerrors"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

type PartyRepo struct {
	db *DB
}

func NewPartyRepo(db *DB) ports.IPartyRepo {
	return &PartyRepo{db: db}
}

const driverColumns = `
	id, tg_id, username, name, phone, car_model, car_plate,
	wallet, rating, trips_count, shift_status, is_deleted`

func (pr *PartyRepo) GetDriver(ctx context.Context, driverID int64) (model.Driver, error) {
	q := `SELECT` + driverColumns + ` FROM drivers WHERE id = $1 AND is_deleted = false`
	return pr.scanDriver(pr.db.pool.QueryRow(ctx, q, driverID))
}

func (pr *PartyRepo) GetDriverByTgID(ctx context.Context, tgID int64) (model.Driver, error) {
	q := `SELECT` + driverColumns + ` FROM drivers WHERE tg_id = $1 AND is_deleted = false`
	return pr.scanDriver(pr.db.pool.QueryRow(ctx, q, tgID))
}

func (pr *PartyRepo) scanDriver(row pgx.Row) (model.Driver, error) {
	var (
		d  model.Driver
		st int
	)
	err := row.Scan(&d.ID, &d.TgID, &d.Username, &d.Name, &d.Phone, &d.CarModel, &d.CarPlate,
		&d.Wallet, &d.Rating, &d.TripsCount, &st, &d.IsDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Driver{}, myerrors.ErrDriverNotFound
	}
	if err != nil {
		return model.Driver{}, err
	}
	d.ShiftStatus = model.DriverShiftStatus(st)
	return d, nil
}

const clientColumns = `
	id, tg_id, username, name, phone, bonuses, rating, trips_count, is_deleted`

func (pr *PartyRepo) GetClient(ctx context.Context, clientID int64) (model.Client, error) {
	q := `SELECT` + clientColumns + ` FROM clients WHERE id = $1 AND is_deleted = false`
	return pr.scanClient(pr.db.pool.QueryRow(ctx, q, clientID))
}

func (pr *PartyRepo) GetClientByTgID(ctx context.Context, tgID int64) (model.Client, error) {
	q := `SELECT` + clientColumns + ` FROM clients WHERE tg_id = $1 AND is_deleted = false`
	return pr.scanClient(pr.db.pool.QueryRow(ctx, q, tgID))
}

func (pr *PartyRepo) scanClient(row pgx.Row) (model.Client, error) {
	var c model.Client
	err := row.Scan(
		&c.ID, &c.TgID, &c.Username, &c.Name, &c.Phone, &c.Bonuses, &c.Rating, &c.TripsCount, &c.IsDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Client{}, myerrors.ErrClientNotFound
	}
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (pr *PartyRepo) SetDriverShiftStatus(ctx context.Context, driverID int64, st model.DriverShiftStatus) error {
	tag, err := pr.db.pool.Exec(ctx,
		`UPDATE drivers SET shift_status = $2 WHERE id = $1`, driverID, int(st))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrDriverNotFound
	}
	return nil
}

// AddToWallet applies the delta in one statement so concurrent
// settlements serialize on the row instead of overwriting each other.
func (pr *PartyRepo) AddToWallet(ctx context.Context, driverID int64, delta int) error {
	tag, err := pr.db.pool.Exec(ctx,
		`UPDATE drivers SET wallet = wallet + $2 WHERE id = $1`, driverID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrDriverNotFound
	}
	return nil
}

func (pr *PartyRepo) AddBonuses(ctx context.Context, clientID int64, delta int) error {
	tag, err := pr.db.pool.Exec(ctx,
		`UPDATE clients SET bonuses = bonuses + $2 WHERE id = $1 AND bonuses + $2 >= 0`, clientID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrClientNotFound
	}
	return nil
}

func (pr *PartyRepo) BumpDriverTrips(ctx context.Context, driverID int64) error {
	_, err := pr.db.pool.Exec(ctx,
		`UPDATE drivers SET trips_count = trips_count + 1 WHERE id = $1`, driverID)
	return err
}

func (pr *PartyRepo) BumpClientTrips(ctx context.Context, clientID int64) error {
	_, err := pr.db.pool.Exec(ctx,
		`UPDATE clients SET trips_count = trips_count + 1 WHERE id = $1`, clientID)
	return err
}

// RateDriver folds one vote into the running mean.
func (pr *PartyRepo) RateDriver(ctx context.Context, driverID int64, stars int) error {
	q := `
	UPDATE drivers SET
		rating = (rating * rating_votes + $2) / (rating_votes + 1),
		rating_votes = rating_votes + 1
	WHERE id = $1
	`
	_, err := pr.db.pool.Exec(ctx, q, driverID, stars)
	return err
}

func (pr *PartyRepo) RateClient(ctx context.Context, clientID int64, stars int) error {
	q := `
	UPDATE clients SET
		rating = (rating * rating_votes + $2) / (rating_votes + 1),
		rating_votes = rating_votes + 1
	WHERE id = $1
	`
	_, err := pr.db.pool.Exec(ctx, q, clientID, stars)
	return err
}
