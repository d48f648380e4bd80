package post

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

func (p *Pgx) Create(ctx context.Context, post *domain.Post) error {
	query, args, err := repository.SqBuilder.
		Insert("posts").
		Columns(
			"id",
			"platforms",
			"content_ref",
			"title",
			"description",
			"tags",
			"schedule_at",
			"priority",
			"status",
			"attempt",
			"created_at",
		).Values(
		post.ID,
		post.Platforms,
		post.ContentRef,
		post.Title,
		post.Description,
		post.Tags,
		post.ScheduleAt,
		int(post.Priority),
		string(post.Status),
		post.Attempt,
		post.CreatedAt,
	).ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}

	return nil
}

func (p *Pgx) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	query, args, err := repository.SqBuilder.
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, repository.ErrBadQuery
	}

	post, err := scanPost(p.pg.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := p.loadOutcomes(ctx, post); err != nil {
		return nil, err
	}

	return post, nil
}

func (p *Pgx) UpdateStatus(ctx context.Context, id string, status domain.PostStatus, attempt int) error {
	query, args, err := repository.SqBuilder.
		Update("posts").
		Set("status", string(status)).
		Set("attempt", attempt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *Pgx) AppendOutcome(ctx context.Context, outcome *domain.PlatformOutcome) error {
	query, args, err := repository.SqBuilder.
		Insert("platform_outcomes").
		Columns(
			"post_id",
			"platform",
			"strategy",
			"strategy_ix",
			"success",
			"escalated",
			"external_id",
			"error_detail",
			"attempt",
			"recorded_at",
		).Values(
		outcome.PostID,
		outcome.Platform,
		outcome.Strategy,
		outcome.StrategyIx,
		outcome.Success,
		outcome.Escalated,
		outcome.ExternalID,
		outcome.ErrorDetail,
		outcome.Attempt,
		outcome.RecordedAt,
	).ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) ListByStatus(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.Post, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	query, args, err := repository.SqBuilder.
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"status": values}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, repository.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, post := range posts {
		if err := p.loadOutcomes(ctx, post); err != nil {
			return nil, err
		}
	}

	return posts, nil
}

var postColumns = []string{
	"id", "platforms", "content_ref", "title", "description",
	"tags", "schedule_at", "priority", "status", "attempt", "created_at",
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	post := domain.Post{Outcomes: map[string]*domain.PlatformOutcome{}}
	var priority int
	var status string
	err := row.Scan(
		&post.ID,
		&post.Platforms,
		&post.ContentRef,
		&post.Title,
		&post.Description,
		&post.Tags,
		&post.ScheduleAt,
		&priority,
		&status,
		&post.Attempt,
		&post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	post.Priority = domain.PriorityClass(priority)
	post.Status = domain.PostStatus(status)
	return &post, nil
}

// loadOutcomes attaches the most recent outcome per platform.
func (p *Pgx) loadOutcomes(ctx context.Context, post *domain.Post) error {
	query, args, err := repository.SqBuilder.
		Select(
			"DISTINCT ON (platform) id", "post_id", "platform", "strategy",
			"strategy_ix", "success", "escalated", "external_id",
			"error_detail", "attempt", "recorded_at",
		).
		From("platform_outcomes").
		Where(sq.Eq{"post_id": post.ID}).
		OrderBy("platform", "attempt DESC", "recorded_at DESC").
		ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		outcome := domain.PlatformOutcome{}
		err := rows.Scan(
			&outcome.ID,
			&outcome.PostID,
			&outcome.Platform,
			&outcome.Strategy,
			&outcome.StrategyIx,
			&outcome.Success,
			&outcome.Escalated,
			&outcome.ExternalID,
			&outcome.ErrorDetail,
			&outcome.Attempt,
			&outcome.RecordedAt,
		)
		if err != nil {
			return err
		}
		post.Outcomes[outcome.Platform] = &outcome
	}

	return rows.Err()
}
