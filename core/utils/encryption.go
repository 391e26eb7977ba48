package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32

	KeySaltLen = 16
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptorFromSecret derives an AES-256 key from a passphrase with argon2id.
func NewEncryptorFromSecret(secret string, salt []byte) (*Encryptor, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	if len(salt) < KeySaltLen {
		return nil, fmt.Errorf("salt must be at least %d bytes, got %d", KeySaltLen, len(salt))
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return NewEncryptor(key)
}

func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext := e.aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

func (e *Encryptor) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	return e.aead.Open(nil, nonce, ciphertext, nil)
}

func (e *Encryptor) EncryptToBlob(plaintext []byte) ([]byte, error) {
	nonce, ct, err := e.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return append(nonce, ct...), nil
}

func (e *Encryptor) DecryptBlob(data []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(data) < ns {
		return nil, ErrCiphertextTooShort
	}
	return e.Decrypt(data[:ns], data[ns:])
}
