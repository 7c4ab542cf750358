package crypto

import (
	"crypto/sha256"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// hash.go - проверка токенов доступа к API
//
// В конфигурации хранится только bcrypt-хеш токена (API_TOKEN_HASH).
// bcrypt намеренно медленный, поэтому TokenVerifier запоминает
// sha256 уже подтверждённых токенов.

var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match hash")
	ErrInvalidHash   = errors.New("invalid token hash format")
	ErrTokenTooLong  = errors.New("token exceeds maximum length of 72 bytes")
)

// DefaultCost стоимость bcrypt по умолчанию
const DefaultCost = 12

// MaxTokenLength ограничение bcrypt
const MaxTokenLength = 72

// HashToken хеширует токен bcrypt'ом с указанной стоимостью (<=0 -> DefaultCost)
func HashToken(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken сравнивает токен с хешем (constant-time внутри bcrypt)
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// TokenVerifier проверяет токены против одного хеша с кешем успешных проверок
type TokenVerifier struct {
	hash string

	mu       sync.RWMutex
	verified map[[32]byte]struct{}
}

// NewTokenVerifier создаёт verifier; пустой hash означает "аутентификация выключена"
func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{hash: hash, verified: make(map[[32]byte]struct{})}
}

// Enabled true, если хеш задан
func (v *TokenVerifier) Enabled() bool {
	return v != nil && v.hash != ""
}

// Verify проверяет токен
func (v *TokenVerifier) Verify(token string) bool {
	if !v.Enabled() {
		return true
	}
	sum := sha256.Sum256([]byte(token))

	v.mu.RLock()
	_, ok := v.verified[sum]
	v.mu.RUnlock()
	if ok {
		return true
	}

	if VerifyToken(token, v.hash) != nil {
		return false
	}

	v.mu.Lock()
	v.verified[sum] = struct{}{}
	v.mu.Unlock()
	return true
}
