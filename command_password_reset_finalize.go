package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"4fQ8...pLw" doc:"Opaque reset token from the email link"`
	Password string `json:"new_password" example:"some_secret_word" doc:"Replacement password"`
}

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithNotifier sets the sink used to emit the password-changed notice.
func (h *FinalizePasswordResetHandler) WithNotifier(n Notifier) *FinalizePasswordResetHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock overrides the time source, useful for tests.
func (h *FinalizePasswordResetHandler) WithClock(clock func() time.Time) *FinalizePasswordResetHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	reset := &PasswordReset{}
	account := &Account{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reset, err = h.repo.PasswordResets().GetByIdentifierTx(ctx, tx, event.Token)
		if err != nil {
			if isRecordMissing(err) {
				return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if reset.IsExpired(h.now()) {
			return ErrTokenExpired
		}

		// absent account here means the reset row outlived its owner
		account, err = h.repo.Accounts().GetByEmailTx(ctx, tx, reset.Email)
		if err != nil {
			if isRecordMissing(err) {
				return goerrors.New("reset token is not associated with an account", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		salt, hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.Accounts().SetCredentialTx(ctx, tx, account.ID, salt, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account credential")
		}

		// single use: the row is deleted, not flagged
		if err := h.repo.PasswordResets().DeleteTx(ctx, tx, reset); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume password reset token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	go func() {
		if err := h.notifier.Notify(context.WithoutCancel(ctx), Notification{
			Email:   account.Email,
			Subject: "Your password was changed",
		}); err != nil {
			h.logger.Warn("password changed notification error: %v", err)
		}
	}()

	h.recordActivity(ctx, account)

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, account *Account) {
	if account == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   account.ID.String(),
			Type: "account",
		},
		AccountID:  account.ID.String(),
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
