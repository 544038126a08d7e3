package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	PasswordResets() repository.Repository[*PasswordReset]
	PreRegisterTokens() repository.Repository[*PreRegisterToken]
	ActivationTokens() repository.Repository[*ActivationToken]
	RevokedTokens() repository.Repository[*RevokedToken]
}

func NewPasswordResetsRepository(db *bun.DB) repository.Repository[*PasswordReset] {
	handlers := repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewPreRegisterTokensRepository(db *bun.DB) repository.Repository[*PreRegisterToken] {
	handlers := repository.ModelHandlers[*PreRegisterToken]{
		NewRecord: func() *PreRegisterToken {
			return &PreRegisterToken{}
		},
		GetID: func(record *PreRegisterToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PreRegisterToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewActivationTokensRepository(db *bun.DB) repository.Repository[*ActivationToken] {
	handlers := repository.ModelHandlers[*ActivationToken]{
		NewRecord: func() *ActivationToken {
			return &ActivationToken{}
		},
		GetID: func(record *ActivationToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ActivationToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewRevokedTokensRepository(db *bun.DB) repository.Repository[*RevokedToken] {
	handlers := repository.ModelHandlers[*RevokedToken]{
		NewRecord: func() *RevokedToken {
			return &RevokedToken{}
		},
		GetID: func(record *RevokedToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *RevokedToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db                *bun.DB
	accounts          Accounts
	passwordResets    repository.Repository[*PasswordReset]
	preRegisterTokens repository.Repository[*PreRegisterToken]
	activationTokens  repository.Repository[*ActivationToken]
	revokedTokens     repository.Repository[*RevokedToken]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                db,
		accounts:          NewAccountsRepository(db),
		passwordResets:    NewPasswordResetsRepository(db),
		preRegisterTokens: NewPreRegisterTokensRepository(db),
		activationTokens:  NewActivationTokensRepository(db),
		revokedTokens:     NewRevokedTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	if m.preRegisterTokens == nil {
		return errors.New("repository preRegisterTokens should be initialized")
	}

	if m.activationTokens == nil {
		return errors.New("repository activationTokens should be initialized")
	}

	if m.revokedTokens == nil {
		return errors.New("repository revokedTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) PasswordResets() repository.Repository[*PasswordReset] {
	return m.passwordResets
}

func (m mngr) PreRegisterTokens() repository.Repository[*PreRegisterToken] {
	return m.preRegisterTokens
}

func (m mngr) ActivationTokens() repository.Repository[*ActivationToken] {
	return m.activationTokens
}

func (m mngr) RevokedTokens() repository.Repository[*RevokedToken] {
	return m.revokedTokens
}
