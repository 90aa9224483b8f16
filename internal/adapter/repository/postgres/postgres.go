package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/short-links/internal/entity"
)

const uniqueViolationErrCode = "23505"

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

type linkDB struct {
	ShortKey  string       `db:"short_key"`
	LongURL   string       `db:"long_url"`
	TargetURL string       `db:"target_url"`
	CreatedAt time.Time    `db:"created_at"`
	ExpiresAt sql.NullTime `db:"expires_at"`
	Clicks    int64        `db:"clicks"`
}

func (l *linkDB) toEntity() *entity.Link {
	return &entity.Link{
		ShortKey:  l.ShortKey,
		LongURL:   l.LongURL,
		TargetURL: l.TargetURL,
		CreatedAt: l.CreatedAt,
		ExpiresAt: l.ExpiresAt.Time,
		Clicks:    l.Clicks,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) Create(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.Create"
	const query = `INSERT INTO links(short_key, long_url, target_url, created_at, expires_at, clicks)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING *`

	var res linkDB

	err := r.db.GetContext(ctx, &res, query,
		link.ShortKey, link.LongURL, link.TargetURL, link.CreatedAt, nullTime(link.ExpiresAt), link.Clicks)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrShortKeyExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into links table: %w", op, err)
	}

	return res.toEntity(), nil
}

func (r *LinkRepository) GetByShortKey(ctx context.Context, shortKey string) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.GetByShortKey"
	const query = `SELECT * FROM links WHERE short_key = $1`

	var res linkDB

	if err := r.db.GetContext(ctx, &res, query, shortKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from links table: %w", op, err)
	}

	return res.toEntity(), nil
}

// GetByLongURL returns the oldest link stored for longURL.
func (r *LinkRepository) GetByLongURL(ctx context.Context, longURL string) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.GetByLongURL"
	const query = `SELECT * FROM links WHERE long_url = $1 ORDER BY created_at, short_key LIMIT 1`

	var res linkDB

	if err := r.db.GetContext(ctx, &res, query, longURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from links table: %w", op, err)
	}

	return res.toEntity(), nil
}

func (r *LinkRepository) Update(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.Update"
	const query = `UPDATE links SET target_url = $1, expires_at = $2, clicks = $3 WHERE short_key = $4 RETURNING *`

	var res linkDB

	err := r.db.GetContext(ctx, &res, query, link.TargetURL, nullTime(link.ExpiresAt), link.Clicks, link.ShortKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update links table row: %w", op, err)
	}

	return res.toEntity(), nil
}

func (r *LinkRepository) Delete(ctx context.Context, shortKey string) error {
	const op = "adapter.repository.postgres.LinkRepository.Delete"
	const query = `DELETE FROM links WHERE short_key = $1`

	res, err := r.db.ExecContext(ctx, query, shortKey)
	if err != nil {
		return fmt.Errorf("%s: failed to delete from links table: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}

func (r *LinkRepository) DeleteAll(ctx context.Context) error {
	const op = "adapter.repository.postgres.LinkRepository.DeleteAll"
	const query = `DELETE FROM links`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: failed to delete from links table: %w", op, err)
	}

	return nil
}

func (r *LinkRepository) ListAll(ctx context.Context) ([]*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.ListAll"
	const query = `SELECT * FROM links ORDER BY created_at, short_key`

	var rows []linkDB

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: failed to select from links table: %w", op, err)
	}

	links := make([]*entity.Link, 0, len(rows))
	for i := range rows {
		links = append(links, rows[i].toEntity())
	}

	return links, nil
}
