package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator guards HTTP routes with bearer session tokens.
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// ProtectedRoute validates the bearer token on every request, rejecting
// revoked sessions, and stashes the claims under the configured context key.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			raw, err := a.TokenFromRequest(c)
			if err != nil {
				return a.ErrorHandler(c, err)
			}

			claims, err := a.auth.Authorize(c.Context(), raw)
			if err != nil {
				return a.ErrorHandler(c, err)
			}

			c.Locals(a.contextKey(), claims)
			c.SetContext(WithClaimsContext(c.Context(), claims))

			return next(c)
		}
	}
}

// TokenFromRequest extracts the bearer token from the Authorization header.
func (a *RouteAuthenticator) TokenFromRequest(c router.Context) (string, error) {
	header := c.Header(router.HeaderAuthorization)
	if header == "" {
		return "", ErrTokenMalformed
	}

	scheme := a.cfg.GetAuthScheme()
	if scheme == "" {
		scheme = "Bearer"
	}

	// scheme and token must be separated by a space: "Bearerabc" is not a
	// bearer credential
	l := len(scheme)
	if len(header) > l+1 && strings.EqualFold(header[:l], scheme) && header[l] == ' ' {
		if token := strings.TrimSpace(header[l+1:]); token != "" {
			return token, nil
		}
	}

	return "", ErrTokenMalformed
}

func (a *RouteAuthenticator) contextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return "session"
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithCode(goerrors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error: %s text_code=%s details=%s",
		richErr.Message,
		richErr.TextCode,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		status = router.StatusUnauthorized
	}

	return c.JSON(status, map[string]any{
		"success": false,
		"error":   richErr.Message,
		"code":    richErr.TextCode,
	})
}
