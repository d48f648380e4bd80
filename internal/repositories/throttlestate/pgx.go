package throttlestate

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/repository"
)

func NewPgx(pg *pgxpool.Pool) *Pgx {
	return &Pgx{
		pg: pg,
	}
}

var _ Repository = (*Pgx)(nil)

type Pgx struct {
	pg *pgxpool.Pool
}

func (p *Pgx) Get(ctx context.Context, platform string) (*domain.ThrottleState, error) {
	query, args, err := repository.SqBuilder.
		Select("platform", "last_post_at").
		From("throttle_state").
		Where(sq.Eq{"platform": platform}).
		ToSql()
	if err != nil {
		return nil, repository.ErrBadQuery
	}

	state := domain.ThrottleState{}
	err = p.pg.QueryRow(ctx, query, args...).Scan(&state.Platform, &state.LastPostAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &state, nil
}

func (p *Pgx) Upsert(ctx context.Context, state *domain.ThrottleState) error {
	query, args, err := repository.SqBuilder.
		Insert("throttle_state").
		Columns("platform", "last_post_at").
		Values(state.Platform, state.LastPostAt).
		Suffix("ON CONFLICT (platform) DO UPDATE SET last_post_at = EXCLUDED.last_post_at").
		ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) All(ctx context.Context) ([]*domain.ThrottleState, error) {
	query, args, err := repository.SqBuilder.
		Select("platform", "last_post_at").
		From("throttle_state").
		ToSql()
	if err != nil {
		return nil, repository.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.ThrottleState
	for rows.Next() {
		state := domain.ThrottleState{}
		if err := rows.Scan(&state.Platform, &state.LastPostAt); err != nil {
			return nil, err
		}
		states = append(states, &state)
	}

	return states, rows.Err()
}
