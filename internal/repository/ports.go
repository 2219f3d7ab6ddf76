package repository

import (
	"context"

	"github.com/example/bazaardial/internal/models"
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Save(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
}

// BusinessStore is the listing store.
type BusinessStore interface {
	Create(ctx context.Context, b *models.Business) error
	Save(ctx context.Context, b *models.Business) error
	FindByID(ctx context.Context, id string) (*models.Business, error)
	FindByOwner(ctx context.Context, ownerID string) (*models.Business, error)
	PhoneTaken(ctx context.Context, phone, excludeID string) (bool, error)
	DeleteByOwner(ctx context.Context, ownerID string) error
	List(ctx context.Context, f ListFilter) ([]models.Business, error)
}
