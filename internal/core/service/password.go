package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32

	// Upper bounds accepted from stored hashes, so a corrupted or hostile
	// record cannot make Verify allocate gigabytes.
	maxArgon2MemoryKiB  = 1 << 20
	maxArgon2Iterations = 16
)

// Argon2Params controls the Argon2id cost.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params follows the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 4}

// PasswordHasher hashes and verifies passwords. New hashes are Argon2id in
// PHC string format; bcrypt hashes from older accounts are still verified.
type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultArgon2Params.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultArgon2Params.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2Params.Parallelism
	}
	return &PasswordHasher{params: params}
}

// Hash returns a randomly salted Argon2id hash. Empty passwords are accepted;
// length policy belongs to the caller.
func (h *PasswordHasher) Hash(password string) string {
	salt := make([]byte, argon2SaltLen)
	// crypto/rand.Read never returns an error and aborts the process instead.
	_, _ = rand.Read(salt)

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify reports whether password matches encoded. Malformed hashes yield
// false, never an error.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	if isBcryptHash(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	}

	params, salt, key, ok := decodeArgon2id(encoded)
	if !ok {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func isBcryptHash(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// decodeArgon2id parses $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>.
func decodeArgon2id(encoded string) (Argon2Params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, false
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, false
	}
	if p.MemoryKiB == 0 || p.MemoryKiB > maxArgon2MemoryKiB ||
		p.Iterations == 0 || p.Iterations > maxArgon2Iterations ||
		p.Parallelism == 0 {
		return Argon2Params{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2Params{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, false
	}
	return p, salt, key, true
}
