package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/givingdesk/internal/donation/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DriverSQL = "sql"

type transactionRow struct {
	ID                    string            `gorm:"primaryKey;type:varchar(32)"`
	StripeSessionID       string            `gorm:"type:varchar(255);index"`
	StripePaymentIntentID string            `gorm:"type:varchar(255);index"`
	StripeSubscriptionID  string            `gorm:"type:varchar(255);index"`
	Amount                float64           `gorm:"not null"`
	Currency              string            `gorm:"type:varchar(8);not null"`
	Category              string            `gorm:"type:varchar(64);not null;index"`
	Type                  string            `gorm:"type:varchar(16);not null"`
	Frequency             string            `gorm:"type:varchar(16)"`
	Status                string            `gorm:"type:varchar(16);not null;index"`
	CustomerEmail         string            `gorm:"type:varchar(320)"`
	Metadata              datatypes.JSONMap `gorm:"type:json"`
	CreatedAt             time.Time         `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt             time.Time         `gorm:"not null;autoUpdateTime:false"`
}

func (transactionRow) TableName() string { return "donation_transactions" }

type subscriptionRow struct {
	ID                   string     `gorm:"primaryKey;type:varchar(32)"`
	StripeSubscriptionID string     `gorm:"type:varchar(255);not null;uniqueIndex"`
	StripeCustomerID     string     `gorm:"type:varchar(255)"`
	Amount               float64    `gorm:"not null"`
	Currency             string     `gorm:"type:varchar(8);not null"`
	Category             string     `gorm:"type:varchar(64);not null"`
	Frequency            string     `gorm:"type:varchar(16)"`
	Status               string     `gorm:"type:varchar(16);not null;index"`
	CustomerEmail        string     `gorm:"type:varchar(320)"`
	NextPaymentDate      *time.Time
	CreatedAt            time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt            time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (subscriptionRow) TableName() string { return "subscription_records" }

type webhookEventRow struct {
	ID        string         `gorm:"primaryKey;type:varchar(32)"`
	EventID   string         `gorm:"type:varchar(255);index"`
	EventType string         `gorm:"type:varchar(128);not null"`
	Processed bool           `gorm:"not null"`
	Data      datatypes.JSON `gorm:"type:json"`
	Error     string         `gorm:"type:text"`
	Timestamp time.Time      `gorm:"column:received_at;not null;index"`
}

func (webhookEventRow) TableName() string { return "webhook_events" }

// Models lists the tables AutoMigrate creates for non-postgres drivers.
func Models() []any {
	return []any{&transactionRow{}, &subscriptionRow{}, &webhookEventRow{}}
}

// GormRepository stores donations in postgres, mysql or sqlite.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Driver() string { return DriverSQL }

func (r *GormRepository) Atomic(ctx context.Context, fn func(tx domain.Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (r *GormRepository) ListTransactions(ctx context.Context) ([]domain.DonationTransaction, error) {
	var rows []transactionRow
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DonationTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *GormRepository) ListSubscriptions(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	var rows []subscriptionRow
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SubscriptionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *GormRepository) ListWebhookEvents(ctx context.Context) ([]domain.WebhookEvent, error) {
	var rows []webhookEventRow
	if err := r.db.WithContext(ctx).Order("received_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.WebhookEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) FindTransaction(lookup domain.TransactionLookup) (*domain.DonationTransaction, error) {
	if lookup.Empty() {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	if lookup.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, lookup.ID)
	}
	if lookup.StripePaymentIntentID != "" {
		clauses = append(clauses, "stripe_payment_intent_id = ?")
		args = append(args, lookup.StripePaymentIntentID)
	}
	if lookup.StripeSessionID != "" {
		clauses = append(clauses, "stripe_session_id = ?")
		args = append(args, lookup.StripeSessionID)
	}

	var row transactionRow
	err := t.db.Where(strings.Join(clauses, " OR "), args...).
		Order("created_at ASC, id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx := row.toDomain()
	return &tx, nil
}

func (t *gormTx) FindTransactionsByPaymentIntent(paymentIntentID string) ([]domain.DonationTransaction, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	var rows []transactionRow
	err := t.db.Where("stripe_payment_intent_id = ?", paymentIntentID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.DonationTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (t *gormTx) InsertTransaction(tx *domain.DonationTransaction) error {
	row := transactionRowFrom(*tx)
	return t.db.Create(&row).Error
}

func (t *gormTx) UpdateTransaction(tx *domain.DonationTransaction) error {
	row := transactionRowFrom(*tx)
	return t.db.Save(&row).Error
}

func (t *gormTx) FindSubscription(stripeSubscriptionID string) (*domain.SubscriptionRecord, error) {
	var row subscriptionRow
	err := t.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := row.toDomain()
	return &rec, nil
}

func (t *gormTx) InsertSubscription(rec *domain.SubscriptionRecord) error {
	row := subscriptionRowFrom(*rec)
	return t.db.Create(&row).Error
}

func (t *gormTx) UpdateSubscription(rec *domain.SubscriptionRecord) error {
	row := subscriptionRowFrom(*rec)
	return t.db.Save(&row).Error
}

func (t *gormTx) AppendWebhookEvent(ev *domain.WebhookEvent, keep int) error {
	row := webhookEventRowFrom(*ev)
	if err := t.db.Create(&row).Error; err != nil {
		return err
	}
	if keep <= 0 {
		return nil
	}

	var stale []string
	err := t.db.Model(&webhookEventRow{}).
		Order("received_at DESC, id DESC").
		Offset(keep).
		Limit(1 << 20).
		Pluck("id", &stale).Error
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return t.db.Where("id IN ?", stale).Delete(&webhookEventRow{}).Error
}

func transactionRowFrom(tx domain.DonationTransaction) transactionRow {
	return transactionRow{
		ID:                    tx.ID,
		StripeSessionID:       tx.StripeSessionID,
		StripePaymentIntentID: tx.StripePaymentIntentID,
		StripeSubscriptionID:  tx.StripeSubscriptionID,
		Amount:                tx.Amount,
		Currency:              tx.Currency,
		Category:              tx.Category,
		Type:                  string(tx.Type),
		Frequency:             string(tx.Frequency),
		Status:                string(tx.Status),
		CustomerEmail:         tx.CustomerEmail,
		Metadata:              datatypes.JSONMap(tx.Metadata),
		CreatedAt:             tx.CreatedAt,
		UpdatedAt:             tx.UpdatedAt,
	}
}

func (row transactionRow) toDomain() domain.DonationTransaction {
	var metadata map[string]any
	if len(row.Metadata) > 0 {
		metadata = map[string]any(row.Metadata)
	}
	return domain.DonationTransaction{
		ID:                    row.ID,
		StripeSessionID:       row.StripeSessionID,
		StripePaymentIntentID: row.StripePaymentIntentID,
		StripeSubscriptionID:  row.StripeSubscriptionID,
		Amount:                row.Amount,
		Currency:              row.Currency,
		Category:              row.Category,
		Type:                  domain.DonationType(row.Type),
		Frequency:             domain.Frequency(row.Frequency),
		Status:                domain.TransactionStatus(row.Status),
		CustomerEmail:         row.CustomerEmail,
		Metadata:              metadata,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
}

func subscriptionRowFrom(rec domain.SubscriptionRecord) subscriptionRow {
	return subscriptionRow{
		ID:                   rec.ID,
		StripeSubscriptionID: rec.StripeSubscriptionID,
		StripeCustomerID:     rec.StripeCustomerID,
		Amount:               rec.Amount,
		Currency:             rec.Currency,
		Category:             rec.Category,
		Frequency:            string(rec.Frequency),
		Status:               string(rec.Status),
		CustomerEmail:        rec.CustomerEmail,
		NextPaymentDate:      rec.NextPaymentDate,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
}

func (row subscriptionRow) toDomain() domain.SubscriptionRecord {
	var next *time.Time
	if row.NextPaymentDate != nil {
		v := row.NextPaymentDate.UTC()
		next = &v
	}
	return domain.SubscriptionRecord{
		ID:                   row.ID,
		StripeSubscriptionID: row.StripeSubscriptionID,
		StripeCustomerID:     row.StripeCustomerID,
		Amount:               row.Amount,
		Currency:             row.Currency,
		Category:             row.Category,
		Frequency:            domain.Frequency(row.Frequency),
		Status:               domain.SubscriptionStatus(row.Status),
		CustomerEmail:        row.CustomerEmail,
		NextPaymentDate:      next,
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
}

func webhookEventRowFrom(ev domain.WebhookEvent) webhookEventRow {
	return webhookEventRow{
		ID:        ev.ID,
		EventID:   ev.EventID,
		EventType: ev.EventType,
		Processed: ev.Processed,
		Data:      datatypes.JSON(ev.Data),
		Error:     ev.Error,
		Timestamp: ev.Timestamp,
	}
}

func (row webhookEventRow) toDomain() domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:        row.ID,
		EventID:   row.EventID,
		EventType: row.EventType,
		Processed: row.Processed,
		Data:      []byte(row.Data),
		Error:     row.Error,
		Timestamp: row.Timestamp.UTC(),
	}
}

var _ domain.Repository = (*GormRepository)(nil)
