package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetAccountCredentialSQL = `UPDATE "accounts" AS "acc"
SET
	"password_salt" = ?,
	"password_hash" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByDocument(ctx context.Context, documentTypeID int, documentNumber string) (*Account, error)
	GetByDocumentTx(ctx context.Context, tx bun.IDB, documentTypeID int, documentNumber string) (*Account, error)

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	Provision(ctx context.Context, account *Account) (*Account, error)
	ProvisionTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Account, error)

	SetCredential(ctx context.Context, id uuid.UUID, salt, hash string) error
	SetCredentialTx(ctx context.Context, tx bun.IDB, id uuid.UUID, salt, hash string) error

	ClaimResendSlot(ctx context.Context, id uuid.UUID, now time.Time, window time.Duration) (bool, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email, criteria...)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*Account, error) {
	record := &Account{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) GetByDocument(ctx context.Context, documentTypeID int, documentNumber string) (*Account, error) {
	return a.GetByDocumentTx(ctx, a.db, documentTypeID, documentNumber)
}

func (a *accounts) GetByDocumentTx(ctx context.Context, tx bun.IDB, documentTypeID int, documentNumber string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.document_type_id = ?", documentTypeID).
		Where("?TableAlias.document_number = ?", documentNumber).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"document_type_id": documentTypeID,
					"document_number":  documentNumber,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// Provision creates a bulk-imported identity: document fields only, no
// credential, unprovisioned status. The id is derived from the document
// number so re-imports stay idempotent.
func (a *accounts) Provision(ctx context.Context, account *Account) (*Account, error) {
	return a.ProvisionTx(ctx, a.db, account)
}

func (a *accounts) ProvisionTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account.ID == uuid.Nil {
		if id, err := hashid.NewUUID(account.DocumentNumber); err == nil {
			account.ID = id
		}
	}

	account.Status = AccountStatusUnprovisioned
	account.Email = ""
	account.PasswordHash = ""
	account.PasswordSalt = ""
	account.EmailVerified = false
	account.Enabled = true

	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) SetCredential(ctx context.Context, id uuid.UUID, salt, hash string) error {
	return a.SetCredentialTx(ctx, a.db, id, salt, hash)
}

func (a *accounts) SetCredentialTx(ctx context.Context, tx bun.IDB, id uuid.UUID, salt, hash string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetAccountCredentialSQL, salt, hash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)

	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(account.ID.String()),
		repository.UpdateSkipZeroValues(),
	}

	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error) {
	record := &Account{
		ID:     id,
		Status: status,
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()), repository.UpdateSkipZeroValues())
}

func (a *accounts) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Account, error) {
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("is_enabled = ?", enabled).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.Repository.GetByID(ctx, id.String())
}

// ClaimResendSlot records an activation-resend request if the previous one is
// older than window. The conditional write is atomic in the database, so the
// throttle holds across horizontally scaled instances.
func (a *accounts) ClaimResendSlot(ctx context.Context, id uuid.UUID, now time.Time, window time.Duration) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("last_resend_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Where("(last_resend_at IS NULL OR last_resend_at <= ?)", now.Add(-window)).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleIrrigator
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
