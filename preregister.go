package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// PreRegisterTokenTTL bounds the window between document validation and
	// credential provisioning.
	PreRegisterTokenTTL = 24 * time.Hour
	// InitialActivationTTL applies to tokens issued when pre-registration
	// completes.
	InitialActivationTTL = 24 * time.Hour
	// ResendActivationTTL applies to tokens issued through resend. The split
	// with InitialActivationTTL is inherited product behavior; do not unify
	// without a product decision.
	ResendActivationTTL = 7 * 24 * time.Hour
	// ResendThrottleWindow is the minimum spacing between activation resends
	// for the same account.
	ResendThrottleWindow = 60 * time.Second
)

// PreRegistration drives the provisioning lifecycle for bulk-imported
// accounts: document validation, credential provisioning, and activation.
type PreRegistration struct {
	repo     RepositoryManager
	machine  AccountStateMachine
	notifier Notifier
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewPreRegistration wires the flow against the given repositories.
func NewPreRegistration(repo RepositoryManager, opts ...PreRegistrationOption) *PreRegistration {
	p := &PreRegistration{
		repo:     repo,
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if p.machine == nil {
		p.machine = NewAccountStateMachine(
			repo.Accounts(),
			WithStateMachineActivitySink(p.activity),
			WithStateMachineClock(p.now),
		)
	}

	return p
}

// PreRegistrationOption customizes flow construction.
type PreRegistrationOption func(*PreRegistration)

// WithPreRegistrationNotifier sets the delivery sink for activation links.
func WithPreRegistrationNotifier(n Notifier) PreRegistrationOption {
	return func(p *PreRegistration) {
		p.notifier = normalizeNotifier(n)
	}
}

// WithPreRegistrationActivitySink sets the audit sink.
func WithPreRegistrationActivitySink(sink ActivitySink) PreRegistrationOption {
	return func(p *PreRegistration) {
		p.activity = normalizeActivitySink(sink)
	}
}

// WithPreRegistrationLogger overrides the logger.
func WithPreRegistrationLogger(logger Logger) PreRegistrationOption {
	return func(p *PreRegistration) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPreRegistrationClock injects a custom clock (useful for tests).
func WithPreRegistrationClock(clock func() time.Time) PreRegistrationOption {
	return func(p *PreRegistration) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithPreRegistrationStateMachine overrides the lifecycle machine.
func WithPreRegistrationStateMachine(machine AccountStateMachine) PreRegistrationOption {
	return func(p *PreRegistration) {
		p.machine = machine
	}
}

// Validate locates a pre-seeded identity by document and, when the stored
// issuance date matches, opens the provisioning window with a fresh token.
// Accounts that already hold credentials are directed to login or reset.
func (p *PreRegistration) Validate(ctx context.Context, documentTypeID int, documentNumber string, dateIssuance time.Time) (*PreRegisterToken, error) {
	account, err := p.repo.Accounts().GetByDocument(ctx, documentTypeID, documentNumber)
	if err != nil {
		if isRecordMissing(err) {
			return nil, goerrors.New("no account found for document", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to locate account by document")
	}

	if !sameDate(account.DateIssuance, dateIssuance) {
		return nil, goerrors.New("document issuance date does not match", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	account.EnsureStatus()
	if account.Status == AccountStatusActive || account.Email != "" {
		return nil, goerrors.New("account is already provisioned", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	record := &PreRegisterToken{
		Token:     token,
		AccountID: account.ID,
		ExpiresAt: p.now().Add(PreRegisterTokenTTL),
	}

	created, err := p.repo.PreRegisterTokens().Create(ctx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create pre-register token")
	}

	p.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPreRegisterValidated,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
	})

	return created, nil
}

// CompletePreRegister consumes a pre-register token, binds the chosen email
// and password to the account, and opens the activation window.
func (p *PreRegistration) CompletePreRegister(ctx context.Context, token, email, password string) (*ActivationToken, error) {
	var activation *ActivationToken
	var account *Account

	err := p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := p.repo.PreRegisterTokens().GetByIdentifierTx(ctx, tx, token)
		if err != nil {
			if isRecordMissing(err) {
				return goerrors.New("unknown pre-register token", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve pre-register token")
		}

		if record.Used {
			return ErrTokenAlreadyUsed
		}

		if record.IsExpired(p.now()) {
			return ErrTokenExpired
		}

		account, err = p.repo.Accounts().GetByIDTx(ctx, tx, record.AccountID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "pre-register token is not associated with an account")
		}

		if existing, err := p.repo.Accounts().GetByEmailTx(ctx, tx, email); err == nil {
			if existing.ID != account.ID {
				return goerrors.New("email is already registered to another account", goerrors.CategoryConflict).
					WithCode(goerrors.CodeConflict).
					WithTextCode(TextCodeEmailTaken)
			}
		} else if !isRecordMissing(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}

		salt, hash, err := HashPassword(password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		update := &Account{
			ID:            account.ID,
			Email:         email,
			PasswordSalt:  salt,
			PasswordHash:  hash,
			EmailVerified: false,
		}
		if _, err := p.repo.Accounts().UpdateTx(ctx, tx, update, repository.UpdateByID(account.ID.String()), repository.UpdateSkipZeroValues()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to bind credentials to account")
		}

		if _, err := p.machine.TransitionTx(ctx, tx, ActorRef{ID: account.ID.String(), Type: "account"}, account, AccountStatusPendingActivation); err != nil {
			return err
		}

		record.Used = true
		if _, err := p.repo.PreRegisterTokens().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume pre-register token")
		}

		activation, err = p.issueActivationTokenTx(ctx, tx, account.ID, InitialActivationTTL)
		if err != nil {
			return err
		}

		account.Email = email
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to complete pre-registration")
	}

	p.sendActivationLink(ctx, account.Email, activation.Token)

	p.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPreRegisterCompleted,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
	})

	return activation, nil
}

// Activate consumes an activation token and completes the lifecycle. Marking
// the token used happens before the status change so a replay always fails.
func (p *PreRegistration) Activate(ctx context.Context, token string) error {
	var account *Account

	err := p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := p.repo.ActivationTokens().GetByIdentifierTx(ctx, tx, token)
		if err != nil {
			if isRecordMissing(err) {
				return goerrors.New("unknown activation token", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve activation token")
		}

		if record.Used {
			return ErrTokenAlreadyUsed
		}

		if record.IsExpired(p.now()) {
			return ErrTokenExpired
		}

		record.Used = true
		if _, err := p.repo.ActivationTokens().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume activation token")
		}

		account, err = p.repo.Accounts().GetByIDTx(ctx, tx, record.AccountID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "activation token is not associated with an account")
		}

		// guard keeps a raced second activation from re-running side effects
		if account.Status == AccountStatusActive {
			return nil
		}

		if _, err := p.machine.TransitionTx(ctx, tx, ActorRef{ID: account.ID.String(), Type: "account"}, account, AccountStatusActive); err != nil {
			return err
		}

		verified := &Account{ID: account.ID, EmailVerified: true}
		if _, err := p.repo.Accounts().UpdateTx(ctx, tx, verified, repository.UpdateByID(account.ID.String()), repository.UpdateSkipZeroValues()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email as verified")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	p.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountActivated,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
	})

	return nil
}

// ResendActivation invalidates any live activation tokens for the account
// and issues a replacement with the longer resend TTL. At most one resend is
// honored per ResendThrottleWindow.
func (p *PreRegistration) ResendActivation(ctx context.Context, account *Account) (*ActivationToken, error) {
	if account == nil {
		return nil, ErrIdentityNotFound
	}

	claimed, err := p.repo.Accounts().ClaimResendSlot(ctx, account.ID, p.now(), ResendThrottleWindow)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check resend throttle")
	}
	if !claimed {
		return nil, ErrResendThrottled
	}

	var activation *ActivationToken

	err = p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*ActivationToken)(nil)).
			Set("used = ?", true).
			Where("account_id = ?", account.ID).
			Where("used = ?", false).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate previous activation tokens")
		}

		activation, err = p.issueActivationTokenTx(ctx, tx, account.ID, ResendActivationTTL)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resend activation")
	}

	p.sendActivationLink(ctx, account.Email, activation.Token)

	p.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventActivationResent,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
	})

	return activation, nil
}

func (p *PreRegistration) issueActivationTokenTx(ctx context.Context, tx bun.Tx, accountID uuid.UUID, ttl time.Duration) (*ActivationToken, error) {
	token, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	record := &ActivationToken{
		Token:     token,
		AccountID: accountID,
		ExpiresAt: p.now().Add(ttl),
	}

	created, err := p.repo.ActivationTokens().CreateTx(ctx, tx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create activation token")
	}

	return created, nil
}

func (p *PreRegistration) sendActivationLink(ctx context.Context, email, token string) {
	if email == "" {
		return
	}

	go func() {
		if err := p.notifier.Notify(context.WithoutCancel(ctx), Notification{
			Email:   email,
			Subject: "Activate your account",
			Metadata: map[string]any{
				"activation_token": token,
			},
		}); err != nil {
			p.logger.Warn("activation notification error: %v", err)
		}
	}()
}

func (p *PreRegistration) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}

	if err := normalizeActivitySink(p.activity).Record(ctx, event); err != nil {
		p.logger.Warn("pre-registration activity sink error: %v", err)
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
