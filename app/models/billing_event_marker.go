package models

import "time"

// BillingEventMarker records that a processor event id was seen. It is the
// relational alternative to the Redis dedup key and carries the same TTL.
type BillingEventMarker struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_id"`
	EventType string    `gorm:"type:varchar(100);not null;default:''" json:"event_type"`
	ExpiresAt time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
