package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *domain.CheckoutSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindSessionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CheckoutSession, error) {
	var item domain.CheckoutSession
	err := db.WithContext(ctx).Raw(
		`SELECT id, billing_id, provider, provider_session_id, amount, currency,
			redirect_url, status, created_at, updated_at
		 FROM checkout_sessions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindSessionByProviderID(ctx context.Context, db *gorm.DB, provider string, providerSessionID string) (*domain.CheckoutSession, error) {
	var item domain.CheckoutSession
	err := db.WithContext(ctx).Raw(
		`SELECT id, billing_id, provider, provider_session_id, amount, currency,
			redirect_url, status, created_at, updated_at
		 FROM checkout_sessions
		 WHERE provider = ? AND provider_session_id = ?
		 LIMIT 1`,
		provider,
		providerSessionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLatestSessionForBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) (*domain.CheckoutSession, error) {
	var item domain.CheckoutSession
	err := db.WithContext(ctx).Raw(
		`SELECT id, billing_id, provider, provider_session_id, amount, currency,
			redirect_url, status, created_at, updated_at
		 FROM checkout_sessions
		 WHERE billing_id = ?
		 ORDER BY id DESC
		 LIMIT 1`,
		billingID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// UpdateSessionStatus only moves open sessions; terminal states stay put.
func (r *repo) UpdateSessionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.SessionStatus, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		at,
		id,
		domain.SessionStatusOpen,
	).Error
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, billing_id,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
