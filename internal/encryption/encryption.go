package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Service interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

type service struct {
	gcm cipher.AEAD
}

// NewService builds an AES-256-GCM sealer from a 64 character hex key. An
// empty key generates a random one, which only suits development since data
// written with it cannot be read after a restart.
func NewService(hexKey string) (Service, error) {
	key := make([]byte, 32)
	if hexKey == "" {
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, err
		}
	} else {
		decoded, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key must be a valid hex string: %w", err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex characters), got %d bytes", len(decoded))
		}
		key = decoded
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &service{gcm: gcm}, nil
}

func (s *service) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *service) Decrypt(encoded string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < s.gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, body := ciphertext[:s.gcm.NonceSize()], ciphertext[s.gcm.NonceSize():]
	return s.gcm.Open(nil, nonce, body, nil)
}

// EncryptString leaves empty values empty so blank fields stay blank at rest.
func (s *service) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return s.Encrypt([]byte(plaintext))
}

func (s *service) DecryptString(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	plain, err := s.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
