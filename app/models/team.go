package models

import "time"

const (
	TeamRoleOwner  = "owner"
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
)

type Team struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	Name              string       `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	OwnerID           uint         `gorm:"not null;index" json:"owner_id"`
	BillingCustomerID string       `gorm:"type:varchar(191);index" json:"-"`
	Members           []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
	CreatedAt         time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// TeamMember links a user to a team. The team owner is stored as a member
// with role owner.
type TeamMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    uint      `gorm:"not null;index:ux_team_members_team_user,unique,priority:1" json:"team_id"`
	UserID    uint      `gorm:"not null;index:ux_team_members_team_user,unique,priority:2;index" json:"user_id"`
	Role      string    `gorm:"type:varchar(16);not null;default:'member'" json:"role" validate:"oneof=owner admin member"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
