package identity

import (
	"context"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Auther issues, validates, and revokes session tokens.
type Auther struct {
	provider     IdentityProvider
	revocations  RevocationStore
	signingKey   []byte
	tokenTTL     time.Duration
	issuer       string
	audience     []string
	logger       Logger
	tokenService TokenService
	activitySink ActivitySink
	now          func() time.Time
}

// NewAuthenticator returns a new Authenticator backed by the given identity
// provider and revocation store.
func NewAuthenticator(provider IdentityProvider, revocations RevocationStore, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		revocations:  revocations,
		signingKey:   []byte(opts.GetSigningKey()),
		tokenTTL:     opts.GetTokenExpiration(),
		audience:     opts.GetAudience(),
		issuer:       opts.GetIssuer(),
		logger:       defLogger{},
		tokenService: tokenService,
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenTTL,
		s.issuer,
		s.audience,
		logger,
	)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials and returns a signed session token. Credential
// failures surface as the same unauthorized error regardless of whether the
// email exists.
func (s *Auther) Login(ctx context.Context, email, password string) (string, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, email, password); err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": ErrIdentityNotFound.Error(),
		})
		return "", ErrIdentityNotFound
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"email": email,
	})

	return token, nil
}

// Logout revokes the session token. The revocation entry carries the token's
// own expiry so the store can drop it once it would no longer validate.
func (s *Auther) Logout(ctx context.Context, token string) error {
	claims, err := s.tokenService.Validate(token)
	if err != nil {
		s.logger.Error("Logout token validation failed: %v", err)
		return err
	}

	expiresAt := claims.Expires()
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(s.tokenTTL)
	}

	if err := s.revocations.Revoke(ctx, token, expiresAt); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session token")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: claims.AccountID(), Type: "account"}, claims.AccountID(), map[string]any{
		"subject": claims.Subject(),
	})

	return nil
}

// Authorize validates the signature and expiry of a session token and
// rejects tokens that were revoked through Logout.
func (s *Auther) Authorize(ctx context.Context, token string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, token)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token revocation")
	}

	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// SessionFromToken validates the raw token and converts the claims into a
// Session. Revocation is not checked here; use Authorize for that.
func (s Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

// IdentityFromSession resolves the identity behind an established session.
func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByEmail(ctx, session.GetSubject())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by email: %v", err)
		return nil, err
	}

	return identity, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "account",
	}
}

var _ Authenticator = (*Auther)(nil)
