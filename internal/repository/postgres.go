package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/example/bazaardial/internal/models"
)

const pgUniqueViolation = "23505"

var pgConstraintFields = map[string]string{
	"idx_users_username":           FieldUsername,
	"idx_users_mobile":             FieldMobile,
	"idx_users_email":              FieldEmail,
	"idx_businesses_owner":         FieldOwner,
	"idx_businesses_primary_phone": FieldPrimaryPhone,
}

// PostgresStore keeps users and businesses in Postgres through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an already migrated gorm connection.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Users() UserStore         { return &pgUsers{db: s.db} }
func (s *PostgresStore) Businesses() BusinessStore { return &pgBusinesses{db: s.db} }

func (s *PostgresStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translatePG(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &DuplicateError{Field: pgConstraintFields[pgErr.ConstraintName], Err: err}
	}
	return err
}

type pgUsers struct {
	db *gorm.DB
}

func (r *pgUsers) Create(ctx context.Context, u *models.User) error {
	return translatePG(r.db.WithContext(ctx).Create(u).Error)
}

func (r *pgUsers) Save(ctx context.Context, u *models.User) error {
	return translatePG(r.db.WithContext(ctx).Save(u).Error)
}

func (r *pgUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *pgUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *pgUsers) FindByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return r.first(ctx, "mobile = ?", mobile)
}

func (r *pgUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *pgUsers) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *pgUsers) first(ctx context.Context, cond string, arg string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&user).Error; err != nil {
		return nil, translatePG(err)
	}
	return &user, nil
}

type pgBusinesses struct {
	db *gorm.DB
}

func (r *pgBusinesses) Create(ctx context.Context, b *models.Business) error {
	return translatePG(r.db.WithContext(ctx).Create(b).Error)
}

func (r *pgBusinesses) Save(ctx context.Context, b *models.Business) error {
	return translatePG(r.db.WithContext(ctx).Save(b).Error)
}

func (r *pgBusinesses) FindByID(ctx context.Context, id string) (*models.Business, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *pgBusinesses) FindByOwner(ctx context.Context, ownerID string) (*models.Business, error) {
	return r.first(ctx, "owner_id = ?", ownerID)
}

func (r *pgBusinesses) PhoneTaken(ctx context.Context, phone, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Business{}).Where("primary_phone = ?", phone)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *pgBusinesses) DeleteByOwner(ctx context.Context, ownerID string) error {
	res := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&models.Business{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgBusinesses) List(ctx context.Context, f ListFilter) ([]models.Business, error) {
	query := r.db.WithContext(ctx).Model(&models.Business{})
	if f.Query != "" {
		query = query.Where("business_name ILIKE ?", "%"+f.Query+"%")
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}

	var items []models.Business
	if err := query.Order("created_at desc").
		Limit(f.Limit).Offset(f.Offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *pgBusinesses) first(ctx context.Context, cond string, arg string) (*models.Business, error) {
	var b models.Business
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&b).Error; err != nil {
		return nil, translatePG(err)
	}
	return &b, nil
}
