package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// MaxLoginAttempts is the maximum number of failed logins an account gets
// in a cooldown period.
var MaxLoginAttempts = 5

// CoolDownPeriod is the window over which failed logins accumulate.
var CoolDownPeriod = 24 * time.Hour

// AccountTracker is the store the provider needs to verify credentials and
// keep the failed-login counters current.
type AccountTracker interface {
	GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*Account, error)
	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

var _ AccountTracker = (Accounts)(nil)

// AccountProvider resolves identities from the accounts store.
type AccountProvider struct {
	store     AccountTracker
	Validator func(*Account) error
	logger    Logger
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountTracker) *AccountProvider {
	return &AccountProvider{
		store:     store,
		logger:    defLogger{},
		Validator: defaultValidator,
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *AccountProvider) validate(account *Account) error {
	if p.Validator != nil {
		return p.Validator(account)
	}
	return defaultValidator(account)
}

// VerifyIdentity will find the account, compare the password, and return the
// identity. A missing account and a wrong password are indistinguishable to
// the caller.
func (p AccountProvider) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	account, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if isRecordMissing(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if account.LoginAttemptAt != nil && IsOutsideThreshold(*account.LoginAttemptAt, CoolDownPeriod) {
		account.LoginAttempts = 0
	}

	if account.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, account.PasswordSalt, account.PasswordHash); err != nil {
		if err2 := p.store.TrackAttemptedLogin(ctx, account); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	if err := p.store.TrackSuccessfulLogin(ctx, account); err != nil {
		p.logger.Error("failed to track successful login: %v", err)
	}

	if err := p.validate(account); err != nil {
		return nil, err
	}

	return accountIdentity{
		id:    account.ID.String(),
		email: account.Email,
		role:  string(account.Role),
	}, nil
}

// FindIdentityByEmail resolves an identity without checking a password.
func (p AccountProvider) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	account, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if err := p.validate(account); err != nil {
		return nil, err
	}

	return accountIdentity{
		id:    account.ID.String(),
		email: account.Email,
		role:  string(account.Role),
	}, nil
}

type accountIdentity struct {
	id    string
	email string
	role  string
}

func (a accountIdentity) ID() string {
	return a.id
}

func (a accountIdentity) Email() string {
	return a.email
}

func (a accountIdentity) Role() string {
	return a.role
}

var _ Identity = accountIdentity{}

func defaultValidator(account *Account) error {
	switch account.Role {
	case RoleIrrigator, RoleOperator, RoleAdmin:
		return nil
	default:
		return goerrors.New("account has an unknown or invalid role", goerrors.CategoryAuth).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": account.Role, "account_id": account.ID.String()})
	}
}

func ensureAuthenticatableAccount(account *Account) error {
	if account == nil {
		return ErrIdentityNotFound
	}

	account.EnsureStatus()
	if !account.CanLogin() {
		return ErrAccountNotLoginable
	}

	return nil
}
