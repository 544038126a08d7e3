package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChangePasswordMessage is the authenticated change-password path: unlike the
// reset flow it requires proof of the current password.
type ChangePasswordMessage struct {
	AccountID       uuid.UUID `json:"account_id"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
}

func (m ChangePasswordMessage) Type() string { return "account.password_change" }

type ChangePasswordHandler struct {
	repo     RepositoryManager
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the sink used to emit the password-changed notice.
func (h *ChangePasswordHandler) WithNotifier(n Notifier) *ChangePasswordHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithActivitySink sets the sink used to emit password change events.
func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	account := &Account{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.repo.Accounts().GetByIDTx(ctx, tx, event.AccountID.String())
		if err != nil {
			if isRecordMissing(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password change")
		}

		if err := ComparePasswordAndHash(event.CurrentPassword, account.PasswordSalt, account.PasswordHash); err != nil {
			return err
		}

		salt, hash, err := HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.Accounts().SetCredentialTx(ctx, tx, account.ID, salt, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account credential")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change password")
	}

	go func() {
		if err := h.notifier.Notify(context.WithoutCancel(ctx), Notification{
			Email:   account.Email,
			Subject: "Your password was changed",
		}); err != nil {
			h.logger.Warn("password changed notification error: %v", err)
		}
	}()

	event2 := ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor: ActorRef{
			ID:   account.ID.String(),
			Type: "account",
		},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event2); err != nil {
		h.logger.Warn("activity sink error during password change: %v", err)
	}

	return nil
}
