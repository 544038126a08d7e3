package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RevocationStore records session tokens invalidated before natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type revocationStore struct {
	db *bun.DB
}

// NewRevocationStore returns a bun-backed RevocationStore.
func NewRevocationStore(db *bun.DB) RevocationStore {
	return &revocationStore{db: db}
}

// Revoke inserts a revocation row. Revoking the same token twice is a no-op
// success; duplicate logout calls must not surface a uniqueness violation.
func (s *revocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return ErrNoEmptyString
	}

	record := &RevokedToken{
		Token:     token,
		ExpiresAt: expiresAt,
	}
	prepareRevokedTokenDefaults(record)

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (token) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record token revocation")
	}

	return nil
}

func (s *revocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*RevokedToken)(nil)).
		Where("token = ?", token).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token revocation")
	}

	return exists, nil
}

// PurgeExpired deletes rows whose expiry has passed. The store is otherwise
// unbounded; run this from a periodic job.
func (s *revocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*RevokedToken)(nil)).
		Where("expires_at < ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge expired revocations")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return n, nil
}

func prepareRevokedTokenDefaults(record *RevokedToken) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
