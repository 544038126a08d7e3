package identity_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/riegodigital/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupIdentityDB(t *testing.T) (*bun.DB, identity.RepositoryManager) {
	t.Helper()

	db, err := identity.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, identity.CreateSchema(context.Background(), db))

	return db, identity.NewRepositoryManager(db)
}

func seedAccount(t *testing.T, repo identity.RepositoryManager) *identity.Account {
	t.Helper()

	account, err := repo.Accounts().Provision(context.Background(), &identity.Account{
		DocumentTypeID: 1,
		DocumentNumber: "12345678",
		DateIssuance:   time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC),
		Role:           identity.RoleIrrigator,
	})
	require.NoError(t, err)
	require.NotNil(t, account)

	return account
}

func TestPreRegistrationLifecycle(t *testing.T) {
	// the pool allows a single connection, so any lookup that bypasses the
	// flow transaction would stall here instead of completing
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, repo := setupIdentityDB(t)

	seedAccount(t, repo)

	flow := identity.NewPreRegistration(repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	preToken, err := flow.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)
	require.NotEmpty(t, preToken.Token)

	activation, err := flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
	require.NotEmpty(t, activation.Token)

	// credentials are bound, but the account stays locked until activation
	provider := identity.NewAccountProvider(repo.Accounts())
	_, err = provider.VerifyIdentity(ctx, "farmer@example.com", "super-secret-pw")
	require.ErrorIs(t, err, identity.ErrAccountNotLoginable)

	require.NoError(t, flow.Activate(ctx, activation.Token))

	auther := identity.NewAuthenticator(provider, identity.NewRevocationStore(db), newMockConfig())

	token, err := auther.Login(ctx, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auther.Authorize(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "farmer@example.com", claims.Subject())

	require.NoError(t, auther.Logout(ctx, token))

	_, err = auther.Authorize(ctx, token)
	require.ErrorIs(t, err, identity.ErrTokenRevoked)

	// logging out again stays a success
	require.NoError(t, auther.Logout(ctx, token))
}

func TestPreRegistrationFailureModes(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	seedAccount(t, repo)

	flow := identity.NewPreRegistration(repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	t.Run("unknown document", func(t *testing.T) {
		_, err := flow.Validate(ctx, 1, "99999999", issuance)
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})

	t.Run("issuance date mismatch", func(t *testing.T) {
		wrong := issuance.AddDate(0, 0, 1)
		_, err := flow.Validate(ctx, 1, "12345678", wrong)
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	})

	t.Run("unknown pre-register token", func(t *testing.T) {
		_, err := flow.CompletePreRegister(ctx, "no-such-token", "a@example.com", "super-secret-pw")
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})

	t.Run("pre-register token is single use", func(t *testing.T) {
		preToken, err := flow.Validate(ctx, 1, "12345678", issuance)
		require.NoError(t, err)

		_, err = flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
		require.NoError(t, err)

		_, err = flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
		require.ErrorIs(t, err, identity.ErrTokenAlreadyUsed)
	})

	t.Run("already provisioned account cannot re-validate", func(t *testing.T) {
		_, err := flow.Validate(ctx, 1, "12345678", issuance)
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	})
}

func TestPreRegistrationEmailConflict(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	first, err := repo.Accounts().Provision(ctx, &identity.Account{
		DocumentTypeID: 1,
		DocumentNumber: "11111111",
		DateIssuance:   issuance,
	})
	require.NoError(t, err)

	_, err = repo.Accounts().Provision(ctx, &identity.Account{
		DocumentTypeID: 1,
		DocumentNumber: "22222222",
		DateIssuance:   issuance,
	})
	require.NoError(t, err)
	_ = first

	flow := identity.NewPreRegistration(repo)

	token1, err := flow.Validate(ctx, 1, "11111111", issuance)
	require.NoError(t, err)
	_, err = flow.CompletePreRegister(ctx, token1.Token, "taken@example.com", "super-secret-pw")
	require.NoError(t, err)

	token2, err := flow.Validate(ctx, 1, "22222222", issuance)
	require.NoError(t, err)

	_, err = flow.CompletePreRegister(ctx, token2.Token, "taken@example.com", "super-secret-pw")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "EMAIL_TAKEN", richErr.TextCode)
}

func TestActivationTokenSemantics(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	account := seedAccount(t, repo)
	flow := identity.NewPreRegistration(repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	preToken, err := flow.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)

	activation, err := flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)

	t.Run("activation is single use", func(t *testing.T) {
		require.NoError(t, flow.Activate(ctx, activation.Token))

		err := flow.Activate(ctx, activation.Token)
		require.ErrorIs(t, err, identity.ErrTokenAlreadyUsed)
	})

	t.Run("unknown activation token", func(t *testing.T) {
		err := flow.Activate(ctx, "bogus")
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})

	t.Run("resend is throttled per account", func(t *testing.T) {
		fresh, err := repo.Accounts().GetByID(ctx, account.ID.String())
		require.NoError(t, err)

		first, err := flow.ResendActivation(ctx, fresh)
		require.NoError(t, err)
		require.NotEmpty(t, first.Token)

		_, err = flow.ResendActivation(ctx, fresh)
		require.ErrorIs(t, err, identity.ErrResendThrottled)
	})
}

func TestResendInvalidatesPreviousTokens(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	account := seedAccount(t, repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	clock := time.Now()
	flow := identity.NewPreRegistration(repo, identity.WithPreRegistrationClock(func() time.Time { return clock }))

	preToken, err := flow.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)

	original, err := flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)

	fresh, err := repo.Accounts().GetByID(ctx, account.ID.String())
	require.NoError(t, err)

	replacement, err := flow.ResendActivation(ctx, fresh)
	require.NoError(t, err)
	require.NotEqual(t, original.Token, replacement.Token)

	// the superseded token no longer activates
	err = flow.Activate(ctx, original.Token)
	require.ErrorIs(t, err, identity.ErrTokenAlreadyUsed)

	// the replacement carries the longer TTL
	assert.WithinDuration(t, clock.Add(identity.ResendActivationTTL), replacement.ExpiresAt, time.Second)

	require.NoError(t, flow.Activate(ctx, replacement.Token))
}

func TestPreRegisterTokenExpiry(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	seedAccount(t, repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	// validated yesterday-plus-an-hour, so the 24h window has closed
	past := time.Now().Add(-identity.PreRegisterTokenTTL - time.Hour)
	backdated := identity.NewPreRegistration(repo, identity.WithPreRegistrationClock(func() time.Time { return past }))

	preToken, err := backdated.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)
	assert.WithinDuration(t, past.Add(identity.PreRegisterTokenTTL), preToken.ExpiresAt, time.Second)

	flow := identity.NewPreRegistration(repo)

	_, err = flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.ErrorIs(t, err, identity.ErrTokenExpired)

	// expiry does not consume the token window: a fresh validation still works
	preToken, err = flow.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)

	_, err = flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
}

func TestActivationTokenExpiry(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	account := seedAccount(t, repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	past := time.Now().Add(-identity.InitialActivationTTL - time.Hour)
	backdated := identity.NewPreRegistration(repo, identity.WithPreRegistrationClock(func() time.Time { return past }))

	preToken, err := backdated.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)
	activation, err := backdated.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
	assert.WithinDuration(t, past.Add(identity.InitialActivationTTL), activation.ExpiresAt, time.Second)

	flow := identity.NewPreRegistration(repo)

	err = flow.Activate(ctx, activation.Token)
	require.ErrorIs(t, err, identity.ErrTokenExpired)

	// the account stays locked and a resend issues a live replacement
	provider := identity.NewAccountProvider(repo.Accounts())
	_, err = provider.VerifyIdentity(ctx, "farmer@example.com", "super-secret-pw")
	require.ErrorIs(t, err, identity.ErrAccountNotLoginable)

	fresh, err := repo.Accounts().GetByID(ctx, account.ID.String())
	require.NoError(t, err)

	replacement, err := flow.ResendActivation(ctx, fresh)
	require.NoError(t, err)
	require.NotEqual(t, activation.Token, replacement.Token)

	require.NoError(t, flow.Activate(ctx, replacement.Token))

	_, err = provider.VerifyIdentity(ctx, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
}

func TestPasswordResetLifecycle(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	account := seedAccount(t, repo)
	flow := identity.NewPreRegistration(repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	preToken, err := flow.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)
	activation, err := flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "old-password-1")
	require.NoError(t, err)
	require.NoError(t, flow.Activate(ctx, activation.Token))

	t.Run("a new request replaces the previous token", func(t *testing.T) {
		var first *identity.InitializePasswordResetResponse
		init := identity.NewInitializePasswordResetHandler(repo)

		require.NoError(t, init.Execute(ctx, identity.InitializePasswordResetMessage{
			Email:      "farmer@example.com",
			OnResponse: func(resp *identity.InitializePasswordResetResponse) { first = resp },
		}))
		require.NotNil(t, first)
		require.NotNil(t, first.Reset)

		var second *identity.InitializePasswordResetResponse
		require.NoError(t, init.Execute(ctx, identity.InitializePasswordResetMessage{
			Email:      "farmer@example.com",
			OnResponse: func(resp *identity.InitializePasswordResetResponse) { second = resp },
		}))
		require.NotNil(t, second.Reset)
		require.NotEqual(t, first.Reset.Token, second.Reset.Token)

		finalize := identity.NewFinalizePasswordResetHandler(repo)

		// the replaced token is gone
		err := finalize.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    first.Reset.Token,
			Password: "new-password-1",
		})
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))

		// the live one works exactly once
		require.NoError(t, finalize.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    second.Reset.Token,
			Password: "new-password-1",
		}))

		err = finalize.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    second.Reset.Token,
			Password: "new-password-2",
		})
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})

	t.Run("new credential takes effect", func(t *testing.T) {
		provider := identity.NewAccountProvider(repo.Accounts())

		_, err := provider.VerifyIdentity(ctx, "farmer@example.com", "old-password-1")
		require.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)

		ident, err := provider.VerifyIdentity(ctx, "farmer@example.com", "new-password-1")
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), ident.ID())
	})

	t.Run("unknown email is reported", func(t *testing.T) {
		init := identity.NewInitializePasswordResetHandler(repo)

		err := init.Execute(ctx, identity.InitializePasswordResetMessage{
			Email: "nobody@example.com",
		})
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})
}

func TestAdminEnableToggle(t *testing.T) {
	ctx := context.Background()
	_, repo := setupIdentityDB(t)

	flow := identity.NewPreRegistration(repo)
	account := seedAccount(t, repo)
	issuance := time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)

	preToken, err := flow.Validate(ctx, 1, "12345678", issuance)
	require.NoError(t, err)
	activation, err := flow.CompletePreRegister(ctx, preToken.Token, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
	require.NoError(t, flow.Activate(ctx, activation.Token))

	provider := identity.NewAccountProvider(repo.Accounts())

	disabled, err := repo.Accounts().SetEnabled(ctx, account.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	_, err = provider.VerifyIdentity(ctx, "farmer@example.com", "super-secret-pw")
	require.ErrorIs(t, err, identity.ErrAccountNotLoginable)

	enabled, err := repo.Accounts().SetEnabled(ctx, account.ID, true)
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)

	_, err = provider.VerifyIdentity(ctx, "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)
}

func TestRevocationStorePersistence(t *testing.T) {
	ctx := context.Background()
	db, _ := setupIdentityDB(t)

	store := identity.NewRevocationStore(db)

	t.Run("revoke and check", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "token-a", time.Now().Add(time.Hour)))

		revoked, err := store.IsRevoked(ctx, "token-a")
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = store.IsRevoked(ctx, "token-b")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("double revoke is a no-op success", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "token-a", time.Now().Add(time.Hour)))
	})

	t.Run("purge drops only expired entries", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "stale", time.Now().Add(-time.Minute)))

		n, err := store.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		revoked, err := store.IsRevoked(ctx, "token-a")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		assert.Error(t, store.Revoke(ctx, "", time.Now()))
	})
}
