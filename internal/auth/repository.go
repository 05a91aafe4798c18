package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type ProfileRepository interface {
	Create(ctx context.Context, p Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (Profile, error)
	GetByEmail(ctx context.Context, email string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role Role) (Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, p Profile) error {
	err := r.db.WithContext(ctx).Create(&p).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (r *profileRepository) GetByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&p).Error; err != nil {
		return Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profileRepository) List(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *profileRepository) UpdateRole(ctx context.Context, id uuid.UUID, role Role) (Profile, error) {
	res := r.db.WithContext(ctx).Model(&Profile{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return Profile{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Profile{}, ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}
