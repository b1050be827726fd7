package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Name              string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email             string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Phone             string         `gorm:"type:varchar(32);default:''" json:"phone" validate:"omitempty,e164"`
	NotificationEmail string         `gorm:"type:varchar(200);default:''" json:"notification_email" validate:"omitempty,email"`
	WhatsAppReminders *bool          `gorm:"not null;default:true" json:"whatsapp_reminders"`
	Timezone          string         `gorm:"type:varchar(64);default:'UTC'" json:"timezone" validate:"omitempty,timezone"`
	BillingCustomerID string         `gorm:"type:varchar(191);index" json:"-"`
	Status            string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// ReminderEmail is the address reminders go to: the override when set,
// otherwise the account email.
func (u *User) ReminderEmail() string {
	if e := strings.TrimSpace(u.NotificationEmail); e != "" {
		return e
	}
	return strings.TrimSpace(u.Email)
}

// WhatsAppEnabled reports the WhatsApp preference. Unset means opted in.
func (u *User) WhatsAppEnabled() bool {
	return u.WhatsAppReminders == nil || *u.WhatsAppReminders
}

// CanReceiveWhatsApp reports whether the user has a phone and has not opted out.
func (u *User) CanReceiveWhatsApp() bool {
	return u.WhatsAppEnabled() && strings.TrimSpace(u.Phone) != ""
}
