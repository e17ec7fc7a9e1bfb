// Package repository holds the Postgres-backed and filesystem-backed
// storage adapters the pipeline facade and the IMAP ingester depend on.
package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/harrowgate/epv/internal/domain"
)

// EmailRepository is the database/sql + squirrel implementation of
// domain.EmailRepository, backed by a single "emails" table.
type EmailRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

func NewEmailRepository(db *sql.DB) *EmailRepository {
	return &EmailRepository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const emailColumns = "id, html_path, username, registered, from_addr, to_addr, subject"

func (r *EmailRepository) ListForUser(ctx context.Context, user string) ([]*domain.EmailRecord, error) {
	query, args, err := r.psql.Select(emailColumns).
		From("emails").
		Where(sq.Eq{"username": user}).
		OrderBy("registered DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.EmailRecord
	for rows.Next() {
		rec, err := scanEmailRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *EmailRepository) GetByID(ctx context.Context, user, id string) (*domain.EmailRecord, error) {
	query, args, err := r.psql.Select(emailColumns).
		From("emails").
		Where(sq.Eq{"id": id, "username": user}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	rec, err := scanEmailRow(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound()
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *EmailRepository) Exists(ctx context.Context, id string) (bool, error) {
	query, args, err := r.psql.Select("1").From("emails").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *EmailRepository) Insert(ctx context.Context, e *domain.EmailRecord) error {
	query, args, err := r.psql.Insert("emails").
		Columns("id", "html_path", "username", "registered", "from_addr", "to_addr", "subject").
		Values(e.ID, e.HTMLPath, e.User, e.Registered, e.FromAddr, e.ToAddr, e.Subject).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// row is satisfied by both *sql.Rows and *sql.Row.
type row interface {
	Scan(dest ...interface{}) error
}

func scanEmailRow(rowScanner row) (*domain.EmailRecord, error) {
	rec := &domain.EmailRecord{}
	err := rowScanner.Scan(&rec.ID, &rec.HTMLPath, &rec.User, &rec.Registered, &rec.FromAddr, &rec.ToAddr, &rec.Subject)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
