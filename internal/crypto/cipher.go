package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength   = 32 // AES-256
	tagLength   = 16 // GCM authentication tag
	hexKeyChars = keyLength * 2
)

// Salt for stretching non-hex keys into AES-256 key material. Fixed per
// application: the key itself comes from a secret store, the salt only
// domain-separates this use of PBKDF2.
var keyDerivationSalt = []byte("postline-token-cipher-v1")

var (
	// ErrDecryptFailed covers every decryption failure mode: malformed
	// encoding, wrong nonce length, and authentication tag mismatch. Callers
	// must not be able to distinguish tampering from corruption.
	ErrDecryptFailed = errors.New("token decryption failed")
)

// Cipher performs authenticated encryption of credential material before it
// is persisted. Ciphertext format: hex(nonce):hex(tag):hex(data). The nonce
// is embedded per value, so a future key-rotation scheme can prepend a
// version tag without breaking stored values.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from the configured key. A 64-character hex string is
// used directly as the 32-byte key; any other non-empty value is stretched
// with PBKDF2-SHA256. An empty key is a configuration error and should abort
// startup.
func New(key string) (*Cipher, error) {
	if key == "" {
		return nil, errors.New("token encryption key is empty")
	}

	var keyBytes []byte
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == keyLength {
		keyBytes = decoded
	} else {
		keyBytes = pbkdf2.Key([]byte(key), keyDerivationSalt, 10000, keyLength, sha256.New)
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the tag; split it out so the stored format carries
	// nonce, tag and data as separate fields.
	data := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return hex.EncodeToString(nonce) + ":" +
		hex.EncodeToString(tag) + ":" +
		hex.EncodeToString(data), nil
}

// Decrypt opens a value produced by Encrypt. Any malformed encoding or tag
// mismatch returns ErrDecryptFailed; no partial plaintext is ever returned.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", ErrDecryptFailed
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrDecryptFailed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return "", ErrDecryptFailed
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext, err := c.aead.Open(nil, nonce, append(data, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
