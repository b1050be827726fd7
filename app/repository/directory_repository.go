package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"gorm.io/gorm"
)

// directoryRepository implements the DirectoryRepository interface
type directoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a new directory repository instance
func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *directoryRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return &user, nil
}

// CreateTeam stores the team and registers its owner as a member with role owner.
func (r *directoryRepository) CreateTeam(ctx context.Context, team *models.Team) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(team).Error; err != nil {
			return err
		}
		owner := models.TeamMember{TeamID: team.ID, UserID: team.OwnerID, Role: models.TeamRoleOwner}
		return tx.Create(&owner).Error
	})
}

func (r *directoryRepository) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).Preload("Members").First(&team, id).Error; err != nil {
		return nil, notFound(err, "team %d", id)
	}
	return &team, nil
}

func (r *directoryRepository) AddMember(ctx context.Context, teamID, userID uint, role string) error {
	switch role {
	case models.TeamRoleOwner, models.TeamRoleAdmin, models.TeamRoleMember:
	default:
		return fmt.Errorf("team role %q: %w", role, apperr.ErrInvalidArgument)
	}
	member := models.TeamMember{TeamID: teamID, UserID: userID, Role: role}
	return r.db.WithContext(ctx).Create(&member).Error
}

// MembersOf returns the active users of a team ordered by user id.
func (r *directoryRepository) MembersOf(ctx context.Context, teamID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.user_id = users.id").
		Where("team_members.team_id = ? AND users.status = ?", teamID, models.STATUS_ACTIVE).
		Order("users.id ASC").
		Find(&users).Error
	return users, err
}

// ResolveOwnerByExternalCustomerID looks at users first, then teams.
func (r *directoryRepository) ResolveOwnerByExternalCustomerID(ctx context.Context, customerID string) (*Owner, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}

	var user models.User
	err := r.db.WithContext(ctx).Where("billing_customer_id = ?", customerID).First(&user).Error
	if err == nil {
		id := user.ID
		return &Owner{UserID: &id}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var team models.Team
	err = r.db.WithContext(ctx).Where("billing_customer_id = ?", customerID).First(&team).Error
	if err == nil {
		id := team.ID
		return &Owner{TeamID: &id}, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}
