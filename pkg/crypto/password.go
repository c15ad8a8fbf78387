package crypto

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes plaintext using bcrypt at the default cost.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// HashPasswordCost hashes plaintext using bcrypt at the given cost.
// Costs outside bcrypt's range fall back to the default.
func HashPasswordCost(plain string, cost int) ([]byte, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// BcryptVerifier checks presented secrets against stored bcrypt hashes.
type BcryptVerifier struct{}

// Verify reports whether secret matches hash. Malformed hashes never verify.
func (BcryptVerifier) Verify(hash []byte, secret string) bool {
	if len(hash) == 0 {
		return false
	}
	return ComparePassword(hash, secret) == nil
}
