package verification

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	secretAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	verificationSecretLen = 32
	refreshSecretLen      = 64
)

// randomSecret draws n characters uniformly from secretAlphabet using the
// system CSPRNG.
func randomSecret(n int) (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		out[i] = secretAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// HashSecret returns the lookup hash stored in place of a plaintext secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
