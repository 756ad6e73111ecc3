package login

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	HashAlgorithmBcrypt   = "bcrypt"
	HashAlgorithmArgon2id = "argon2id"
)

// CredentialHasher produces and checks password hashes bound to a
// mail address. A hash derived for one address never verifies
// against another, so changing the mail requires a rebind.
type CredentialHasher interface {
	Derive(password, mail string) (string, error)
	Verify(password, mail, hash string) bool
}

// NewHasher builds the hasher for the configured algorithm.
// A cost <= 0 selects the algorithm default.
func NewHasher(algorithm string, cost int, pepper string) (CredentialHasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", HashAlgorithmBcrypt:
		return NewBcryptHasher(pepper, cost), nil
	case HashAlgorithmArgon2id:
		return NewArgon2idHasher(pepper), nil
	default:
		return nil, errors.New("unknown hash algorithm", errors.CategoryValidation).
			WithTextCode("UNKNOWN_HASH_ALGORITHM").
			WithMetadata(map[string]any{"algorithm": algorithm})
	}
}

// BcryptHasher hashes the mail-bound digest with bcrypt
type BcryptHasher struct {
	pepper []byte
	cost   int
}

// NewBcryptHasher creates a bcrypt backed hasher
func NewBcryptHasher(pepper string, cost int) *BcryptHasher {
	if cost <= 0 {
		cost = defaultBcryptCost
	}
	return &BcryptHasher{
		pepper: []byte(pepper),
		cost:   cost,
	}
}

// Derive will generate a password hash bound to mail
func (h *BcryptHasher) Derive(password, mail string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	out, err := bcrypt.GenerateFromPassword(bindSecret(h.pepper, password, mail), h.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to derive password hash")
	}
	return string(out), nil
}

// Verify will validate the cleartext password against hash for mail
func (h *BcryptHasher) Verify(password, mail, hash string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bindSecret(h.pepper, password, mail)) == nil
}

// bindSecret mixes the normalized mail into the secret. The output is
// base64 so it stays under the 72 byte bcrypt input limit.
func bindSecret(pepper []byte, password, mail string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(normalizeMail(mail)))
	mac.Write([]byte{0})
	mac.Write([]byte(password))

	sum := mac.Sum(nil)
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum)
	return out
}

func normalizeMail(mail string) string {
	return strings.ToLower(strings.TrimSpace(mail))
}

var _ CredentialHasher = (*BcryptHasher)(nil)
