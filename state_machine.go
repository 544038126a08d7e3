package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// AccountStatusUpdater is the slice of the accounts repository the state
// machine needs.
type AccountStatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error)
}

// AccountStateMachine defines lifecycle operations for accounts.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus) (*Account, error)
	TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, account *Account, target AccountStatus) (*Account, error)
	CurrentStatus(account *Account) AccountStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the
// provided repository. The graph is strictly forward: unprovisioned accounts
// gain credentials, pending accounts activate, and active is terminal. The
// admin Enabled toggle is handled outside the machine.
func NewAccountStateMachine(accounts AccountStatusUpdater, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusUnprovisioned: {
				AccountStatusPendingActivation: {},
			},
			AccountStatusPendingActivation: {
				AccountStatusActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	accounts     AccountStatusUpdater
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus) (*Account, error) {
	return sm.TransitionTx(ctx, nil, actor, account, target)
}

func (sm *accountStateMachine) TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, account *Account, target AccountStatus) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "account is nil",
		})
	}

	account.EnsureStatus()
	from := account.Status
	if target == "" {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from == target {
		return account, nil
	}

	if !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	var updated *Account
	var err error
	if tx != nil {
		updated, err = sm.accounts.UpdateStatusTx(ctx, tx, account.ID, target)
	} else {
		updated, err = sm.accounts.UpdateStatus(ctx, account.ID, target)
	}
	if err != nil {
		return nil, err
	}

	if updated != nil && updated.Status != "" {
		account.Status = updated.Status
	} else {
		account.Status = target
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   target,
	})

	return account, nil
}

func (sm *accountStateMachine) CurrentStatus(account *Account) AccountStatus {
	if account == nil {
		return ""
	}
	account.EnsureStatus()
	return account.Status
}

func (sm *accountStateMachine) canTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}
