package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Joletx42/trans-aggregator-bot/internal/scheduler"
)

// JobStore keeps scheduled jobs in postgres so timers survive a
// restart.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) scheduler.Store {
	return &JobStore{db: db}
}

func (js *JobStore) Insert(ctx context.Context, job scheduler.Job) error {
	q := `
	INSERT INTO scheduled_jobs (id, run_at, handler, args)
	VALUES ($1, $2, $3, $4)
	`
	_, err := js.db.pool.Exec(ctx, q, job.ID, job.RunAt, job.Handler, job.Args)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return scheduler.ErrJobExists
	}
	return err
}

func (js *JobStore) Delete(ctx context.Context, id string) error {
	tag, err := js.db.pool.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scheduler.ErrJobNotFound
	}
	return nil
}

func (js *JobStore) Get(ctx context.Context, id string) (scheduler.Job, error) {
	q := `SELECT id, run_at, handler, args FROM scheduled_jobs WHERE id = $1`

	var job scheduler.Job
	err := js.db.pool.QueryRow(ctx, q, id).Scan(&job.ID, &job.RunAt, &job.Handler, &job.Args)
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduler.Job{}, scheduler.ErrJobNotFound
	}
	if err != nil {
		return scheduler.Job{}, err
	}
	return job, nil
}

// ClaimDue removes and returns every job due by now. The delete and
// the read are one statement, so two schedulers polling the same table
// never fire the same job twice.
func (js *JobStore) ClaimDue(ctx context.Context, now time.Time) ([]scheduler.Job, error) {
	q := `
	DELETE FROM scheduled_jobs
	WHERE id IN (
		SELECT id FROM scheduled_jobs WHERE run_at <= $1 FOR UPDATE SKIP LOCKED
	)
	RETURNING id, run_at, handler, args
	`
	rows, err := js.db.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduler.Job
	for rows.Next() {
		var job scheduler.Job
		if err := rows.Scan(&job.ID, &job.RunAt, &job.Handler, &job.Args); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
