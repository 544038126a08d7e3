package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// PurgeExpiredTokens deletes reset, pre-register, and activation token rows
// past their expiry. Run it from a periodic job alongside
// RevocationStore.PurgeExpired; expired rows are already unusable, this only
// keeps the tables from growing without bound.
func PurgeExpiredTokens(ctx context.Context, db *bun.DB) (int64, error) {
	var total int64

	for _, model := range []any{
		(*PasswordReset)(nil),
		(*PreRegisterToken)(nil),
		(*ActivationToken)(nil),
	} {
		res, err := db.NewDelete().
			Model(model).
			Where("expires_at < ?", time.Now()).
			Exec(ctx)
		if err != nil {
			return total, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge expired tokens")
		}

		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	return total, nil
}
