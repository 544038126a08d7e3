package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// PasswordResetTTL bounds how long a reset token stays consumable.
const PasswordResetTTL = time.Hour

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	Reset   *PasswordReset
	Success bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
	now      func() time.Time
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithNotifier sets the sink used to deliver the reset link.
func (h *InitializePasswordResetHandler) WithNotifier(n Notifier) *InitializePasswordResetHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock overrides the time source, useful for tests.
func (h *InitializePasswordResetHandler) WithClock(clock func() time.Time) *InitializePasswordResetHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	reset := &PasswordReset{}
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email); err != nil {
			if isRecordMissing(err) {
				return goerrors.New("no account registered for email", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		// at most one live token per email: the delete and insert share the
		// transaction so concurrent requests cannot leave two survivors
		if _, err := tx.NewDelete().
			Model((*PasswordReset)(nil)).
			Where("email = ?", event.Email).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate previous reset tokens")
		}

		token, err := NewOpaqueToken()
		if err != nil {
			return err
		}

		reset.Token = token
		reset.Email = event.Email
		reset.ExpiresAt = h.now().Add(PasswordResetTTL)

		createdReset, err := h.repo.PasswordResets().CreateTx(ctx, tx, reset)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
		}
		resp.Reset = createdReset

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	go func() {
		if err := h.notifier.Notify(context.WithoutCancel(ctx), Notification{
			Email:   resp.Reset.Email,
			Subject: "Password reset requested",
			Metadata: map[string]any{
				"reset_token": resp.Reset.Token,
			},
		}); err != nil {
			h.logger.Warn("password reset notification error: %v", err)
		}
	}()

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
