package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// SecretPrefix marks generated bridge secrets.
const SecretPrefix = "brsec_"

// GenerateSecret returns a random shared secret for the downstream
// "internal" query parameter: "brsec_" + 32 bytes hex, 70 characters.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("signature: failed to generate random secret: " + err.Error())
	}
	return SecretPrefix + hex.EncodeToString(b)
}
