package users

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrCredentialMismatch indicates the presented secret does not match.
var ErrCredentialMismatch = errors.New("users: credential mismatch")

// Credentials produces and verifies the opaque credential secret stored on a
// user. The identity core never inspects the secret itself.
type Credentials interface {
	Hash(plain string) (string, error)
	Verify(secret, plain string) error
}

// BcryptCredentials implements Credentials with bcrypt.
type BcryptCredentials struct {
	Cost int
}

// Hash derives a bcrypt secret.
func (b BcryptCredentials) Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("%w: credential required", ErrInvalidUser)
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("users: hash credential: %w", err)
	}
	return string(hashed), nil
}

// Verify compares plain against the stored secret.
func (b BcryptCredentials) Verify(secret, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(secret), []byte(plain)); err != nil {
		return ErrCredentialMismatch
	}
	return nil
}

var _ Credentials = BcryptCredentials{}
