package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SubTrack/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarkerRepository persists billing event dedup markers.
type MarkerRepository interface {
	// Insert stores a marker unless a live one exists for the event id. It
	// reports whether this call created (or reclaimed) the marker.
	Insert(ctx context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, eventID string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type markerRepository struct {
	db *gorm.DB
}

func NewMarkerRepository(db *gorm.DB) MarkerRepository {
	return &markerRepository{db: db}
}

func (r *markerRepository) Insert(ctx context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (bool, error) {
	marker := models.BillingEventMarker{
		EventID:   eventID,
		EventType: eventType,
		ExpiresAt: now.Add(ttl),
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&marker)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	// An expired marker is taken over by exactly one caller.
	tx = r.db.WithContext(ctx).Model(&models.BillingEventMarker{}).
		Where("event_id = ? AND expires_at <= ?", eventID, now).
		Updates(map[string]interface{}{
			"event_type": eventType,
			"expires_at": now.Add(ttl),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *markerRepository) Delete(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&models.BillingEventMarker{}).Error
}

func (r *markerRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.BillingEventMarker{})
	return tx.RowsAffected, tx.Error
}
