package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
)

// Repository реализует OrderRepository в памяти процесса.
// Используется в тестах и при STORE_DRIVER=memory; каждая операция выполняется под одной блокировкой,
// поэтому условное обновление статуса атомарно так же, как UPDATE ... WHERE в PostgreSQL.
type Repository struct {
	mu         sync.RWMutex
	jobs       map[string]repository.Job
	orders     map[string]repository.Order
	byExternal map[string]string // externalId -> orderId
	now        func() time.Time
}

// NewRepository создаёт пустое хранилище
func NewRepository() *Repository {
	return &Repository{
		jobs:       make(map[string]repository.Job),
		orders:     make(map[string]repository.Order),
		byExternal: make(map[string]string),
		now:        time.Now,
	}
}

func (r *Repository) CreateJob(ctx context.Context, job repository.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, repository.ErrDuplicateID)
	}
	if job.Status == "" {
		job.Status = repository.JobPending
	}
	now := r.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	r.jobs[job.ID] = job
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id string) (repository.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return repository.Job{}, repository.ErrJobNotFound
	}
	return job, nil
}

func (r *Repository) MarkJobPaid(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false, repository.ErrJobNotFound
	}
	if job.Status == repository.JobPaid {
		return false, nil
	}
	job.Status = repository.JobPaid
	job.UpdatedAt = r.now().UTC()
	r.jobs[id] = job
	return true, nil
}

func (r *Repository) CreateOrder(ctx context.Context, order repository.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %s: %w", order.ID, repository.ErrDuplicateID)
	}
	if order.JobID != "" {
		if _, ok := r.jobs[order.JobID]; !ok {
			return repository.ErrJobNotFound
		}
	}
	if order.Status == "" {
		order.Status = payment.StatusUnpaid
	}
	// externalId появляется только через AttachInvoice
	order.ExternalID = ""
	now := r.now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	r.orders[order.ID] = order
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	return order, nil
}

func (r *Repository) GetOrderByExternalID(ctx context.Context, externalID string) (repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	return r.orders[id], nil
}

func (r *Repository) AttachInvoice(ctx context.Context, orderID string, inv repository.InvoiceFields) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	if order.Status.Terminal() {
		return repository.Order{}, repository.ErrOrderClosed
	}
	if order.ExternalID != "" {
		return repository.Order{}, repository.ErrInvoiceAlreadyAttached
	}
	if _, taken := r.byExternal[inv.ExternalID]; taken {
		return repository.Order{}, repository.ErrExternalIDTaken
	}

	order.ExternalID = inv.ExternalID
	order.PayAmount = inv.PayAmount
	order.PayAddress = inv.PayAddress
	order.PayCurrency = inv.PayCurrency
	order.NetworkName = inv.NetworkName
	order.QRCode = inv.QRCode
	order.ExpiresAt = inv.ExpiresAt
	order.UpdatedAt = r.now().UTC()

	r.orders[orderID] = order
	r.byExternal[inv.ExternalID] = orderID
	return order, nil
}

func (r *Repository) ApplyStatus(ctx context.Context, key string, kind payment.KeyKind, status payment.Status) (repository.Order, bool, error) {
	if !status.Terminal() {
		return repository.Order{}, false, fmt.Errorf("apply status %q: only terminal statuses can be applied", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := key
	if kind == payment.KeyExternalID {
		var ok bool
		if id, ok = r.byExternal[key]; !ok {
			return repository.Order{}, false, repository.ErrNotFound
		}
	}

	order, ok := r.orders[id]
	if !ok {
		return repository.Order{}, false, repository.ErrNotFound
	}
	if order.Status.Terminal() {
		return order, false, nil
	}

	order.Status = status
	order.UpdatedAt = r.now().UTC()
	r.orders[id] = order
	return order, true, nil
}

func (r *Repository) ListExpired(ctx context.Context, before time.Time, limit int) ([]repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Order, 0)
	for _, o := range r.orders {
		if o.Status != payment.StatusUnpaid || o.ExternalID == "" || o.ExpiresAt.IsZero() {
			continue
		}
		if o.ExpiresAt.Before(before) {
			out = append(out, o)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return nil
}
