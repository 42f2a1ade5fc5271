package membership

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mastersleague/platform/pkg/common/models"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrClubNotFound = errors.New("club not found")
)

// Repository reads delegates and clubs for claim precondition checks. This
// subsystem never writes either table; the community site owns them.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type userModel struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey;column:id"`
	Name     string     `gorm:"column:name"`
	Email    string     `gorm:"column:email"`
	Role     string     `gorm:"column:role"`
	ClubID   *uuid.UUID `gorm:"type:uuid;column:club_id"`
	IsActive bool       `gorm:"column:is_active"`
}

func (userModel) TableName() string { return "users" }

type clubModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	Name     string    `gorm:"column:name"`
	State    string    `gorm:"column:state"`
	IsActive bool      `gorm:"column:is_active"`
}

func (clubModel) TableName() string { return "clubs" }

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	var row userModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		ID:       row.ID,
		Name:     row.Name,
		Email:    row.Email,
		Role:     row.Role,
		ClubID:   row.ClubID,
		IsActive: row.IsActive,
	}, nil
}

func (r *Repository) GetClub(ctx context.Context, id uuid.UUID) (models.Club, error) {
	var row clubModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Club{}, ErrClubNotFound
	}
	if err != nil {
		return models.Club{}, err
	}
	return models.Club{
		ID:       row.ID,
		Name:     row.Name,
		State:    row.State,
		IsActive: row.IsActive,
	}, nil
}
