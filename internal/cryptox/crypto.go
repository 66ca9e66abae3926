// Package cryptox holds the client-side key derivation. A master secret is
// stretched from the master password with PBKDF2-SHA256 and split with HKDF
// into an auth hash, which is sent to the server, and an encryption key,
// which never leaves the client.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 600_000
	// KeySize is the length in bytes of every derived key.
	KeySize = 32

	authHashInfo      = "zkvault/auth-hash"
	encryptionKeyInfo = "zkvault/encryption-key"
)

var ErrInvalidSalt = errors.New("salt must be hex")

// Keys is the result of a derivation. EncryptionKey must stay on the client.
type Keys struct {
	AuthHash      string
	EncryptionKey []byte
}

// Wipe zeroes the encryption key.
func (k *Keys) Wipe() {
	common.WipeByteArray(k.EncryptionKey)
}

// NewSalt returns a fresh hex salt for registration.
func NewSalt() (string, error) {
	return common.MakeRandHexString(common.SaltSize)
}

// DeriveKeys derives the auth hash and encryption key for a user. The email
// is folded into the PBKDF2 salt so equal passwords and salts on different
// accounts still yield different keys.
func DeriveKeys(password []byte, email, saltHex string) (*Keys, error) {
	return deriveKeys(password, email, saltHex, Iterations)
}

func deriveKeys(password []byte, email, saltHex string, iterations int) (*Keys, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return nil, ErrInvalidSalt
	}

	kdfSalt := append(salt, []byte(strings.ToLower(strings.TrimSpace(email)))...)
	master := pbkdf2.Key(password, kdfSalt, iterations, KeySize, sha256.New)
	defer common.WipeByteArray(master)

	authHash, err := expand(master, authHashInfo)
	if err != nil {
		return nil, err
	}
	encKey, err := expand(master, encryptionKeyInfo)
	if err != nil {
		return nil, err
	}

	return &Keys{AuthHash: hex.EncodeToString(authHash), EncryptionKey: encKey}, nil
}

func expand(master []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// Encrypt seals plaintext with AES-GCM under key and returns hex ciphertext
// and hex nonce, the shape the server stores for the nickname.
func Encrypt(plaintext, key []byte) (ciphertextHex, nonceHex string, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return "", "", err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return hex.EncodeToString(ciphertext), hex.EncodeToString(nonce), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertextHex, nonceHex string, key []byte) ([]byte, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("nonce: want %d bytes, got %d", aesgcm.NonceSize(), len(nonce))
	}

	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
