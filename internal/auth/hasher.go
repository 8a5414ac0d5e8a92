package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrMalformed, "password cannot be empty")

// pbkdf2Prefix tags hashes written by the Django backend this service replaced.
const pbkdf2Prefix = "pbkdf2_sha256$"

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// CredentialHasher hashes new passwords with bcrypt and verifies both bcrypt and
// legacy pbkdf2_sha256 hashes.
type CredentialHasher struct {
	cost int
}

// NewCredentialHasher returns a hasher using the given bcrypt cost, or bcrypt.DefaultCost when cost is out of range.
func NewCredentialHasher(cost int) *CredentialHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialHasher{cost: cost}
}

// Hash produces a salted bcrypt hash.
func (h *CredentialHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrapf(ErrMalformed, "hash password: %v", err)
	}
	return string(hash), nil
}

// IsHashed recognizes an algorithm tag without checking the rest of the value.
func (h *CredentialHasher) IsHashed(value string) bool {
	if strings.HasPrefix(value, pbkdf2Prefix) {
		return true
	}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

// Prepare hashes value unless it already carries an algorithm tag.
func (h *CredentialHasher) Prepare(value string) (string, error) {
	if h.IsHashed(value) {
		return value, nil
	}
	return h.Hash(value)
}

// Verify reports whether plaintext matches hashed. Malformed hashes yield false.
func (h *CredentialHasher) Verify(plaintext, hashed string) bool {
	if strings.HasPrefix(hashed, pbkdf2Prefix) {
		return verifyPBKDF2(plaintext, hashed)
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// NeedsUpgrade reports whether hashed should be replaced after a successful login.
func (h *CredentialHasher) NeedsUpgrade(hashed string) bool {
	cost, err := bcrypt.Cost([]byte(hashed))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// verifyPBKDF2 checks a "pbkdf2_sha256$<iterations>$<salt>$<base64 key>" hash.
func verifyPBKDF2(plaintext, hashed string) bool {
	parts := strings.Split(hashed, "$")
	if len(parts) != 4 {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(expected) == 0 {
		return false
	}
	key := pbkdf2.Key([]byte(plaintext), []byte(parts[2]), iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(key, expected) == 1
}
