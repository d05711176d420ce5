package privacy

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jwalitptl/care-scheduler/pkg/security"
)

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Cipher encrypts personal fields at rest. Ciphertexts are base64 encoded
// nonce||sealed bytes produced by AES-256-GCM.
type Cipher struct {
	enc security.Encryptor
}

func NewCipher(secret string) (*Cipher, error) {
	enc, err := security.NewAESEncryptorFromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Cipher{enc: enc}, nil
}

// Encrypt leaves the empty string empty so optional columns stay blank.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := c.enc.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	plaintext, err := c.enc.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Hash is a stable SHA-256 hex digest, used to look values up without
// storing them in clear.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
