package users

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-identity/internal/shared"
)

var (
	// ErrNotFound indicates no user exists for the tenant and key. Records of
	// other tenants are reported the same way.
	ErrNotFound = fmt.Errorf("users: %w", shared.ErrNotFound)
	// ErrInvalidReference indicates a malformed role reference.
	ErrInvalidReference = errors.New("users: invalid role reference")
	// ErrInvalidUser indicates the record violates a field invariant.
	ErrInvalidUser = errors.New("users: invalid user")
	// ErrEmailTaken indicates the email is already registered in the tenant.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrConcurrentModification indicates the stored version moved since load.
	ErrConcurrentModification = errors.New("users: concurrent modification")
)

var validate = validator.New()

type userRules struct {
	FirstName string `validate:"required,max=120"`
	LastName  string `validate:"required,max=120"`
	Email     string `validate:"required,email,max=254"`
	Secret    string `validate:"required"`
}
