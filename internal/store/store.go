package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procodus.dev/silowatch/internal/silo"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps a GORM database handle with typed access methods for the
// pipeline's entities.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a new Store.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Store{db: db, logger: logger}, nil
}

// CreateReading persists a new reading. Readings are immutable once stored.
func (s *Store) CreateReading(ctx context.Context, r *silo.Reading) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create reading: %w", err)
	}
	return nil
}

// LastReading returns the most recent reading for the silo by sample
// timestamp, or ErrNotFound when the silo has no readings yet.
func (s *Store) LastReading(ctx context.Context, siloID uuid.UUID) (*silo.Reading, error) {
	var r silo.Reading
	err := s.db.WithContext(ctx).
		Where("silo_id = ?", siloID).
		Order("timestamp DESC").
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch last reading: %w", err)
	}
	return &r, nil
}

// LatestReadings returns up to n readings for the silo, newest first.
func (s *Store) LatestReadings(ctx context.Context, siloID uuid.UUID, n int) ([]silo.Reading, error) {
	var readings []silo.Reading
	err := s.db.WithContext(ctx).
		Where("silo_id = ?", siloID).
		Order("timestamp DESC").
		Limit(n).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings: %w", err)
	}
	return readings, nil
}

// CreateEvent appends a silo event.
func (s *Store) CreateEvent(ctx context.Context, e *silo.SiloEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create silo event: %w", err)
	}
	return nil
}

// CreateAlert persists a new alert.
func (s *Store) CreateAlert(ctx context.Context, a *silo.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// AlertFilter narrows ListAlerts results. Zero values leave the
// corresponding criterion unconstrained.
type AlertFilter struct {
	SiloID uuid.UUID
	Since  time.Time
	Until  time.Time
	Limit  int
}

// DefaultAlertLimit caps alert listings when the filter does not set one.
const DefaultAlertLimit = 100

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]silo.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAlertLimit
	}

	q := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if filter.SiloID != uuid.Nil {
		q = q.Where("silo_id = ?", filter.SiloID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	var alerts []silo.Alert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks the alert acknowledged by the given user.
// Acknowledgment is monotonic: the guarded update only fires on the first
// call, so a repeated ack keeps the original acknowledger and time. The
// alert is re-fetched and returned in its current state either way.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID, userID uuid.UUID) (*silo.Alert, error) {
	updates := map[string]any{
		"acknowledged": true,
		"ack_at":       time.Now().UTC(),
	}
	// A Nil user records an anonymous ack.
	if userID != uuid.Nil {
		updates["ack_by"] = userID
	}

	res := s.db.WithContext(ctx).
		Model(&silo.Alert{}).
		Where("id = ? AND acknowledged = ?", alertID, false).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", res.Error)
	}

	var a silo.Alert
	if err := s.db.WithContext(ctx).First(&a, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch alert: %w", err)
	}
	return &a, nil
}

// ListSilos returns all silos ordered by name.
func (s *Store) ListSilos(ctx context.Context) ([]silo.Silo, error) {
	var silos []silo.Silo
	if err := s.db.WithContext(ctx).Order("name").Find(&silos).Error; err != nil {
		return nil, fmt.Errorf("failed to list silos: %w", err)
	}
	return silos, nil
}

// GetSilo returns the silo with the given ID, or ErrNotFound.
func (s *Store) GetSilo(ctx context.Context, id uuid.UUID) (*silo.Silo, error) {
	var sl silo.Silo
	if err := s.db.WithContext(ctx).First(&sl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch silo: %w", err)
	}
	return &sl, nil
}

// CreateSilo persists a new silo. Administrative mutation lives outside the
// pipeline; this exists for provisioning and tests.
func (s *Store) CreateSilo(ctx context.Context, sl *silo.Silo) error {
	if sl.ID == uuid.Nil {
		sl.ID = uuid.New()
	}

	if err := s.db.WithContext(ctx).Create(sl).Error; err != nil {
		return fmt.Errorf("failed to create silo: %w", err)
	}
	return nil
}

// SilosWithFeed returns the silos that carry a feed channel mapping and are
// therefore polled by the scheduler.
func (s *Store) SilosWithFeed(ctx context.Context) ([]silo.Silo, error) {
	var silos []silo.Silo
	err := s.db.WithContext(ctx).
		Where("feed_channel_id IS NOT NULL").
		Order("name").
		Find(&silos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list polled silos: %w", err)
	}
	return silos, nil
}

// SavePushSubscription upserts a push subscription by endpoint. Re-subscribing
// with the same endpoint refreshes the key material and silo scope.
func (s *Store) SavePushSubscription(ctx context.Context, sub *silo.PushSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "silo_id"}),
		}).
		Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

// SubscriptionsForSilo returns the subscriptions scoped to the silo plus the
// globally scoped ones (silo_id IS NULL).
func (s *Store) SubscriptionsForSilo(ctx context.Context, siloID uuid.UUID) ([]silo.PushSubscription, error) {
	var subs []silo.PushSubscription
	err := s.db.WithContext(ctx).
		Where("silo_id = ? OR silo_id IS NULL", siloID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	return subs, nil
}

// GlobalSubscriptions returns only the globally scoped subscriptions. The
// dispatcher falls back to these when the alert's silo cannot be resolved.
func (s *Store) GlobalSubscriptions(ctx context.Context) ([]silo.PushSubscription, error) {
	var subs []silo.PushSubscription
	err := s.db.WithContext(ctx).
		Where("silo_id IS NULL").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list global push subscriptions: %w", err)
	}
	return subs, nil
}

// DeletePushSubscription removes the subscription with the given endpoint.
// Deleting an absent endpoint is a no-op.
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&silo.PushSubscription{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}
