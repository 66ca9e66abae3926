// Package users declares the credential store: persistence of user identity
// records (email, salt, auth hash, nickname ciphertext).
package users

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// Repository persists users. Lookups return common.ErrorNotFound when the
// row is absent; Create returns common.ErrAlreadyExists for a taken email.
// Emails are stored and matched in their case-folded form.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
