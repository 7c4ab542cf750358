package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// encrypt.go - шифрование учётных данных песочниц брокеров
//
// Ключи API песочниц (Tradovate demo, Alpaca paper) хранятся в конфигурации
// только в зашифрованном виде (AES-256-GCM, base64) и расшифровываются
// адаптером при создании HTTP-клиента.

var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// KeySize длина ключа AES-256
const KeySize = 32

// Sealer шифрует и расшифровывает секреты одним ключом
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создаёт Sealer; ключ ровно 32 байта
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

// Seal шифрует plaintext, результат: base64(nonce || ciphertext || tag)
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open расшифровывает результат Seal
func (s *Sealer) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, data := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Encrypt одноразовое шифрование без создания Sealer
func Encrypt(plaintext string, key []byte) (string, error) {
	s, err := NewSealer(key)
	if err != nil {
		return "", err
	}
	return s.Seal(plaintext)
}

// Decrypt одноразовая расшифровка
func Decrypt(encoded string, key []byte) (string, error) {
	s, err := NewSealer(key)
	if err != nil {
		return "", err
	}
	return s.Open(encoded)
}

// ParseKey принимает ключ из переменной окружения:
// 64 hex-символа, base64 от 32 байт или сырые 32 байта
func ParseKey(value string) ([]byte, error) {
	if len(value) == 2*KeySize {
		if key, err := hex.DecodeString(value); err == nil {
			return key, nil
		}
	}
	if key, err := base64.StdEncoding.DecodeString(value); err == nil && len(key) == KeySize {
		return key, nil
	}
	if len(value) == KeySize {
		return []byte(value), nil
	}
	return nil, ErrInvalidKeyLength
}

// GenerateKey случайный ключ AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
