package escalation

import (
	"context"
	"encoding/json"
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

func (p *Pgx) Create(ctx context.Context, record *domain.EscalationRecord) error {
	attempts, err := json.Marshal(record.Attempts)
	if err != nil {
		return err
	}

	query, args, err := repository.SqBuilder.
		Insert("escalations").
		Columns(
			"id",
			"post_id",
			"platform",
			"attempts",
			"status",
			"created_at",
		).Values(
		record.ID,
		record.PostID,
		record.Platform,
		attempts,
		string(record.Status),
		record.CreatedAt,
	).ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) GetByID(ctx context.Context, id string) (*domain.EscalationRecord, error) {
	query, args, err := repository.SqBuilder.
		Select(escalationColumns...).
		From("escalations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, repository.ErrBadQuery
	}

	record, err := scanEscalation(p.pg.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return record, nil
}

func (p *Pgx) ListPending(ctx context.Context) ([]*domain.EscalationRecord, error) {
	query, args, err := repository.SqBuilder.
		Select(escalationColumns...).
		From("escalations").
		Where(sq.Eq{"status": string(domain.EscalationStatusPending)}).
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

	var records []*domain.EscalationRecord
	for rows.Next() {
		record, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (p *Pgx) Resolve(ctx context.Context, id, externalURL, operatorNote string) error {
	query, args, err := repository.SqBuilder.
		Update("escalations").
		Set("status", string(domain.EscalationStatusResolved)).
		Set("external_url", externalURL).
		Set("operator_note", operatorNote).
		Set("resolved_at", sq.Expr("NOW()")).
		Where(sq.Eq{
			"id":     id,
			"status": string(domain.EscalationStatusPending),
		}).
		ToSql()
	if err != nil {
		return repository.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}

	return nil
}

var escalationColumns = []string{
	"id", "post_id", "platform", "attempts", "status",
	"created_at", "external_url", "operator_note", "resolved_at",
}

func scanEscalation(row pgx.Row) (*domain.EscalationRecord, error) {
	record := domain.EscalationRecord{}
	var attempts []byte
	var status string
	var externalURL, operatorNote *string
	err := row.Scan(
		&record.ID,
		&record.PostID,
		&record.Platform,
		&attempts,
		&status,
		&record.CreatedAt,
		&externalURL,
		&operatorNote,
		&record.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(attempts, &record.Attempts); err != nil {
		return nil, err
	}
	record.Status = domain.EscalationStatus(status)
	if externalURL != nil {
		record.ExternalURL = *externalURL
	}
	if operatorNote != nil {
		record.OperatorNote = *operatorNote
	}

	return &record, nil
}
