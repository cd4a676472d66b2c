// Package encryption protects text at rest with a passphrase.
//
// A 64-byte PBKDF2-HMAC-SHA256 derivation over the passphrase and a 16-byte
// salt yields an AES-256-GCM key and an HMAC-SHA256 key. The GCM nonce is the
// truncated HMAC of the plaintext, so encrypting the same text with the same
// passphrase and salt always produces the same ciphertext while different
// texts never share a nonce. Salt and ciphertext travel as hex strings.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is used when the settings carry no encryption_iterations.
	DefaultIterations = 65536

	// SaltSize is the length of a freshly generated salt in bytes.
	SaltSize = 16

	keySize   = 32
	nonceSize = 12
)

// ErrDecryption is returned when the passphrase is wrong or the ciphertext
// was altered. No plaintext is ever returned alongside it.
var ErrDecryption = errors.New("decryption failed: wrong passphrase or corrupted data")

type keys struct {
	enc []byte
	mac []byte
}

func deriveKeys(passphrase string, salt []byte, iterations int) keys {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	material := pbkdf2.Key([]byte(passphrase), salt, iterations, 2*keySize, sha256.New)
	return keys{enc: material[:keySize], mac: material[keySize:]}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Encrypt seals plaintext under passphrase. When salt is nil a random salt
// is generated; passing a previous salt back in reproduces the same output
// for the same plaintext.
func Encrypt(passphrase, plaintext string, salt []byte, iterations int) (saltHex, cipherHex string, err error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return "", "", fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	k := deriveKeys(passphrase, salt, iterations)
	gcm, err := newGCM(k.enc)
	if err != nil {
		return "", "", fmt.Errorf("failed to create cipher: %w", err)
	}

	mac := hmac.New(sha256.New, k.mac)
	mac.Write([]byte(plaintext))
	nonce := mac.Sum(nil)[:nonceSize]

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)

	return hex.EncodeToString(salt), hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed hex and authentication failures are
// both reported as ErrDecryption.
func Decrypt(saltHex, cipherHex, passphrase string, iterations int) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("%w: invalid salt: %v", ErrDecryption, err)
	}
	data, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext: %v", ErrDecryption, err)
	}

	k := deriveKeys(passphrase, salt, iterations)
	gcm, err := newGCM(k.enc)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(data) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}
