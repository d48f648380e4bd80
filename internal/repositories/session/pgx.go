package session

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

func (p *Pgx) Get(ctx context.Context, platform string) (*domain.Session, error) {
	query, args, err := repository.SqBuilder.
		Select("platform", "blob", "created_at", "expires_at").
		From("platform_sessions").
		Where(sq.Eq{"platform": platform}).
		ToSql()
	if err != nil {
		return nil, repository.ErrBadQuery
	}

	session := domain.Session{}
	err = p.pg.QueryRow(ctx, query, args...).Scan(
		&session.Platform,
		&session.Blob,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &session, nil
}

func (p *Pgx) Upsert(ctx context.Context, session *domain.Session) error {
	query, args, err := repository.SqBuilder.
		Insert("platform_sessions").
		Columns("platform", "blob", "created_at", "expires_at").
		Values(session.Platform, session.Blob, session.CreatedAt, session.ExpiresAt).
		Suffix("ON CONFLICT (platform) DO UPDATE SET blob = EXCLUDED.blob, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at").
		ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}
