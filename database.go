package identity

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewSQLiteDB opens a bun handle over the pure-Go SQLite shim. Use ":memory:"
// as the DSN for throwaway databases.
func NewSQLiteDB(dsn string) (*bun.DB, error) {
	db, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
	}

	// the shim driver is not safe for concurrent writers on one file
	db.SetMaxOpenConns(1)

	return bun.NewDB(db, sqlitedialect.New()), nil
}

// CreateSchema creates the tables backing the credential lifecycle. Intended
// for tests and local bootstrapping; production schemas are migrated
// externally.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*Account)(nil),
		(*PasswordReset)(nil),
		(*PreRegisterToken)(nil),
		(*ActivationToken)(nil),
		(*RevokedToken)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}

	return nil
}
