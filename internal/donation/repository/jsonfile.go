package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smallbiznis/givingdesk/internal/donation/domain"
	obsmetrics "github.com/smallbiznis/givingdesk/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	DriverFile = "file"

	transactionsFile  = "transactions.json"
	subscriptionsFile = "subscriptions.json"
	webhookEventsFile = "webhook-events.json"
)

// FileRepository keeps each collection as a pretty-printed JSON array under dir.
type FileRepository struct {
	dir     string
	mu      sync.Mutex
	locker  *Locker
	metrics *obsmetrics.StoreMetrics
	log     *zap.Logger
}

func NewFileRepository(dir string, locker *Locker, metrics *obsmetrics.StoreMetrics, log *zap.Logger) (*FileRepository, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileRepository{
		dir:     dir,
		locker:  locker,
		metrics: metrics,
		log:     log.Named("donation.filestore"),
	}, nil
}

func (r *FileRepository) Driver() string { return DriverFile }

func (r *FileRepository) Atomic(ctx context.Context, fn func(tx domain.Tx) error) error {
	waitStart := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	token, err := r.locker.Acquire(ctx, storeLockKey, storeLockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), storeLockKey, token); err != nil {
			r.log.Warn("release store lock", zap.Error(err))
		}
	}()
	r.metrics.ObserveLockWait(DriverFile, time.Since(waitStart))

	tx := &fileTx{repo: r}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.flush()
}

func (r *FileRepository) ListTransactions(context.Context) ([]domain.DonationTransaction, error) {
	return readCollection[domain.DonationTransaction](r.path(transactionsFile))
}

func (r *FileRepository) ListSubscriptions(context.Context) ([]domain.SubscriptionRecord, error) {
	return readCollection[domain.SubscriptionRecord](r.path(subscriptionsFile))
}

func (r *FileRepository) ListWebhookEvents(context.Context) ([]domain.WebhookEvent, error) {
	return readCollection[domain.WebhookEvent](r.path(webhookEventsFile))
}

func (r *FileRepository) path(name string) string {
	return filepath.Join(r.dir, name)
}

// fileTx loads each collection on first use and rewrites only the ones it changed.
type fileTx struct {
	repo *FileRepository

	transactions  collection[domain.DonationTransaction]
	subscriptions collection[domain.SubscriptionRecord]
	events        collection[domain.WebhookEvent]
}

type collection[T any] struct {
	items  []T
	loaded bool
	dirty  bool
}

func (c *collection[T]) load(path string) error {
	if c.loaded {
		return nil
	}
	items, err := readCollection[T](path)
	if err != nil {
		return err
	}
	c.items = items
	c.loaded = true
	return nil
}

func (c *collection[T]) flush(path string) error {
	if !c.dirty {
		return nil
	}
	return writeCollection(path, c.items)
}

func (t *fileTx) loadTransactions() error {
	return t.transactions.load(t.repo.path(transactionsFile))
}

func (t *fileTx) loadSubscriptions() error {
	return t.subscriptions.load(t.repo.path(subscriptionsFile))
}

func (t *fileTx) FindTransaction(lookup domain.TransactionLookup) (*domain.DonationTransaction, error) {
	if err := t.loadTransactions(); err != nil {
		return nil, err
	}
	for _, item := range t.transactions.items {
		if lookup.Matches(item) {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (t *fileTx) FindTransactionsByPaymentIntent(paymentIntentID string) ([]domain.DonationTransaction, error) {
	if err := t.loadTransactions(); err != nil {
		return nil, err
	}
	var out []domain.DonationTransaction
	for _, item := range t.transactions.items {
		if paymentIntentID != "" && item.StripePaymentIntentID == paymentIntentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (t *fileTx) InsertTransaction(tx *domain.DonationTransaction) error {
	if err := t.loadTransactions(); err != nil {
		return err
	}
	t.transactions.items = append(t.transactions.items, *tx)
	t.transactions.dirty = true
	return nil
}

func (t *fileTx) UpdateTransaction(tx *domain.DonationTransaction) error {
	if err := t.loadTransactions(); err != nil {
		return err
	}
	for i := range t.transactions.items {
		if t.transactions.items[i].ID == tx.ID {
			t.transactions.items[i] = *tx
			t.transactions.dirty = true
			return nil
		}
	}
	return domain.ErrTransactionNotFound
}

func (t *fileTx) FindSubscription(stripeSubscriptionID string) (*domain.SubscriptionRecord, error) {
	if err := t.loadSubscriptions(); err != nil {
		return nil, err
	}
	for _, item := range t.subscriptions.items {
		if item.StripeSubscriptionID == stripeSubscriptionID {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (t *fileTx) InsertSubscription(rec *domain.SubscriptionRecord) error {
	if err := t.loadSubscriptions(); err != nil {
		return err
	}
	t.subscriptions.items = append(t.subscriptions.items, *rec)
	t.subscriptions.dirty = true
	return nil
}

func (t *fileTx) UpdateSubscription(rec *domain.SubscriptionRecord) error {
	if err := t.loadSubscriptions(); err != nil {
		return err
	}
	for i := range t.subscriptions.items {
		if t.subscriptions.items[i].StripeSubscriptionID == rec.StripeSubscriptionID {
			t.subscriptions.items[i] = *rec
			t.subscriptions.dirty = true
			return nil
		}
	}
	return domain.ErrSubscriptionNotFound
}

func (t *fileTx) AppendWebhookEvent(ev *domain.WebhookEvent, keep int) error {
	if err := t.events.load(t.repo.path(webhookEventsFile)); err != nil {
		return err
	}
	items := append(t.events.items, *ev)
	if keep > 0 && len(items) > keep {
		items = append([]domain.WebhookEvent(nil), items[len(items)-keep:]...)
	}
	t.events.items = items
	t.events.dirty = true
	return nil
}

func (t *fileTx) flush() error {
	if err := t.transactions.flush(t.repo.path(transactionsFile)); err != nil {
		return err
	}
	if err := t.subscriptions.flush(t.repo.path(subscriptionsFile)); err != nil {
		return err
	}
	return t.events.flush(t.repo.path(webhookEventsFile))
}

// readCollection treats a missing or blank file as empty. Anything that does
// not parse is reported as corrupt and left untouched on disk.
func readCollection[T any](path string) ([]T, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptStore, filepath.Base(path), err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func writeCollection[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	raw = append(raw, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

var _ domain.Repository = (*FileRepository)(nil)
