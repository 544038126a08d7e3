package identity

import (
	"crypto/rand"
	"encoding/base64"

	goerrors "github.com/goliatone/go-errors"
)

// opaqueTokenLen is the entropy in bytes behind every opaque token.
const opaqueTokenLen = 32

// NewOpaqueToken mints a random, unguessable lookup token for the reset,
// pre-register, and activation flows. The value carries no embedded meaning.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
