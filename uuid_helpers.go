package identity

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ensureTokenID assigns a jti so individual tokens can be revoked and audited.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

// HasAccountUUID reports whether Session.GetAccountUUID will succeed.
func HasAccountUUID(session Session) bool {
	if session == nil {
		return false
	}
	_, err := session.GetAccountUUID()
	return err == nil
}
