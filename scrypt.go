package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// scrypt work factors. Changing these invalidates every stored credential,
// so treat them as part of the persisted format.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// HashPassword derives a credential from the given password using a fresh
// random salt. Both salt and hash are returned hex encoded.
func HashPassword(password string) (salt string, hash string, err error) {
	if password == "" {
		return "", "", ErrNoEmptyString
	}

	rawSalt := make([]byte, saltLen)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password salt")
	}

	key, err := scrypt.Key([]byte(password), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive password hash")
	}

	return hex.EncodeToString(rawSalt), hex.EncodeToString(key), nil
}

// VerifyPassword re-derives the key for candidate with the stored salt and
// compares it against the stored hash in constant time.
func VerifyPassword(saltHex, hashHex, candidate string) (bool, error) {
	rawSalt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, ErrInvalidSaltEncoding
	}

	rawHash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, ErrInvalidSaltEncoding
	}

	key, err := scrypt.Key([]byte(candidate), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive password hash")
	}

	return subtle.ConstantTimeCompare(key, rawHash) == 1, nil
}

// ComparePasswordAndHash validates the given cleartext password against a
// stored credential, collapsing every mismatch into a single auth error.
func ComparePasswordAndHash(password, salt, hash string) error {
	ok, err := VerifyPassword(salt, hash, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMismatchedHashAndPassword
	}
	return nil
}

// RandomPasswordHash is a throwaway credential for accounts that have not
// chosen a password yet.
func RandomPasswordHash() (salt string, hash string) {
	pwd := uuid.New()

	salt, hash, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return salt, hash
}
