package service

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(testArgon2Params)

	for _, pw := range []string{"pw1", "correct horse battery staple", "", "ünïcødé-🔑"} {
		encoded := h.Hash(pw)
		if !strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$") {
			t.Fatalf("unexpected encoding for %q: %s", pw, encoded)
		}
		if !h.Verify(pw, encoded) {
			t.Fatalf("expected %q to verify against its own hash", pw)
		}
	}
}

func TestPasswordHasher_RejectsOtherPassword(t *testing.T) {
	h := NewPasswordHasher(testArgon2Params)

	encoded := h.Hash("pw1")
	if h.Verify("pw2", encoded) {
		t.Fatalf("different password must not verify")
	}
	if h.Verify("", encoded) {
		t.Fatalf("empty password must not verify against a non-empty one")
	}
}

func TestPasswordHasher_SaltsEveryHash(t *testing.T) {
	h := NewPasswordHasher(testArgon2Params)

	if h.Hash("same") == h.Hash("same") {
		t.Fatalf("expected distinct salts for repeated hashes")
	}
}

func TestPasswordHasher_MalformedHashIsFalse(t *testing.T) {
	h := NewPasswordHasher(testArgon2Params)
	valid := h.Hash("pw")
	parts := strings.Split(valid, "$")

	cases := map[string]string{
		"empty":           "",
		"garbage":         "not-a-hash",
		"wrong algorithm": strings.Replace(valid, "argon2id", "argon2i", 1),
		"wrong version":   strings.Replace(valid, "v=19", "v=16", 1),
		"bad params":      strings.Replace(valid, "m=1024,t=1,p=1", "m=x,t=1,p=1", 1),
		"zero memory":     strings.Replace(valid, "m=1024", "m=0", 1),
		"huge memory":     strings.Replace(valid, "m=1024", "m=4194304", 1),
		"bad salt":        strings.Join([]string{"", parts[1], parts[2], parts[3], "!!!", parts[5]}, "$"),
		"missing key":     strings.Join(parts[:5], "$"),
		"bad bcrypt":      "$2a$10$short",
	}
	for name, encoded := range cases {
		if h.Verify("pw", encoded) {
			t.Fatalf("%s: expected false", name)
		}
	}
}

func TestPasswordHasher_VerifiesLegacyBcrypt(t *testing.T) {
	h := NewPasswordHasher(testArgon2Params)

	legacy, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !h.Verify("old-password", string(legacy)) {
		t.Fatalf("expected legacy bcrypt hash to verify")
	}
	if h.Verify("wrong", string(legacy)) {
		t.Fatalf("wrong password verified against bcrypt hash")
	}
}

func TestNewPasswordHasher_Defaults(t *testing.T) {
	h := NewPasswordHasher(Argon2Params{})
	if h.params != DefaultArgon2Params {
		t.Fatalf("expected default params, got %+v", h.params)
	}
}
