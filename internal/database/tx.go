package database

import (
	"context"
	"database/sql"
	"errors"

	"plainchat/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.DB(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = apperr.DB(cerr)
		}
	}()

	return fn(tx)
}

// mapErr turns driver errors into the taxonomy: missing rows and foreign key
// misses become DoesNotExist, unique violations become AlreadyExists.
func mapErr(err error, target, data string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &apperr.DoesNotExist{Type: target, Data: data}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &apperr.AlreadyExists{Type: target, Data: data}
		case pgForeignKeyViolation:
			return &apperr.DoesNotExist{Type: target, Data: data}
		}
	}
	var se *apperr.StoreError
	if errors.As(err, &se) {
		return err
	}
	return apperr.DB(err)
}
