package login

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
)

// OWASP recommended argon2id parameters
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// Argon2idHasher hashes the mail-bound digest with argon2id and
// encodes it in PHC string format.
type Argon2idHasher struct {
	pepper []byte
}

// NewArgon2idHasher creates an argon2id backed hasher
func NewArgon2idHasher(pepper string) *Argon2idHasher {
	return &Argon2idHasher{pepper: []byte(pepper)}
}

// Derive produces $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Derive(password, mail string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate salt")
	}

	key := argon2.IDKey(bindSecret(h.pepper, password, mail), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify returns false for malformed hashes instead of failing
func (h *Argon2idHasher) Verify(password, mail, encoded string) bool {
	if encoded == "" || password == "" {
		return false
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}

	if threads == 0 || threads > 255 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 || len(expected) > 1<<10 {
		return false
	}

	computed := argon2.IDKey(bindSecret(h.pepper, password, mail), salt, time, memory, uint8(threads), uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

var _ CredentialHasher = (*Argon2idHasher)(nil)
