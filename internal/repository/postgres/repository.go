package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// orderColumns общий список колонок для SELECT и RETURNING; nullable поля инвойса через COALESCE
const orderColumns = `id, COALESCE(job_id, ''), amount, tip_amount, currency, email, phone, status,
	COALESCE(external_id, ''), COALESCE(pay_amount, 0), COALESCE(pay_address, ''), COALESCE(pay_currency, ''),
	COALESCE(network_name, ''), COALESCE(qr_code, ''), expires_at, created_at, updated_at`

// terminalStatuses попадает в WHERE условного обновления
const terminalStatuses = `('paid', 'expired', 'failed')`

// Repository реализует OrderRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

func (r *Repository) CreateJob(ctx context.Context, job repository.Job) error {
	status := job.Status
	if status == "" {
		status = repository.JobPending
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO jobs (id, amount, description, status) VALUES ($1, $2, $3, $4)`,
		job.ID, job.Amount, job.Description, string(status))
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return fmt.Errorf("job %s: %w", job.ID, repository.ErrDuplicateID)
		}
		return &payment.StoreError{Op: "create job", Err: err}
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id string) (repository.Job, error) {
	var job repository.Job
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, amount, description, status, created_at, updated_at FROM jobs WHERE id = $1`,
		id).Scan(&job.ID, &job.Amount, &job.Description, &status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Job{}, repository.ErrJobNotFound
		}
		return repository.Job{}, &payment.StoreError{Op: "get job", Err: err}
	}
	job.Status = repository.JobStatus(status)
	return job, nil
}

func (r *Repository) MarkJobPaid(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = 'paid', updated_at = now() WHERE id = $1 AND status <> 'paid'`, id)
	if err != nil {
		return false, &payment.StoreError{Op: "mark job paid", Err: err}
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// 0 строк: либо уже paid, либо такой работы нет
	if _, err := r.GetJob(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) CreateOrder(ctx context.Context, order repository.Order) error {
	status := order.Status
	if status == "" {
		status = payment.StatusUnpaid
	}
	currency := order.Currency
	if currency == "" {
		currency = "USD"
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (id, job_id, amount, tip_amount, currency, email, phone, status)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)`,
		order.ID, order.JobID, order.Amount, order.TipAmount, currency, order.Email, order.Phone, string(status))
	if err != nil {
		switch {
		case isPgError(err, pgForeignKeyViolation):
			return repository.ErrJobNotFound
		case isPgError(err, pgUniqueViolation):
			return fmt.Errorf("order %s: %w", order.ID, repository.ErrDuplicateID)
		}
		return &payment.StoreError{Op: "create order", Err: err}
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (repository.Order, error) {
	return r.getOrder(ctx, "id", id)
}

func (r *Repository) GetOrderByExternalID(ctx context.Context, externalID string) (repository.Order, error) {
	return r.getOrder(ctx, "external_id", externalID)
}

// getOrder column подставляется только из констант выше
func (r *Repository) getOrder(ctx context.Context, column, value string) (repository.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Order{}, repository.ErrNotFound
		}
		return repository.Order{}, &payment.StoreError{Op: "get order", Err: err}
	}
	return order, nil
}

func (r *Repository) AttachInvoice(ctx context.Context, orderID string, inv repository.InvoiceFields) (repository.Order, error) {
	var expiresAt *time.Time
	if !inv.ExpiresAt.IsZero() {
		t := inv.ExpiresAt.UTC()
		expiresAt = &t
	}

	order, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders SET
			external_id = $2, pay_amount = $3, pay_address = $4, pay_currency = $5,
			network_name = $6, qr_code = $7, expires_at = $8, updated_at = now()
		 WHERE id = $1 AND external_id IS NULL AND status = 'unpaid'
		 RETURNING `+orderColumns,
		orderID, inv.ExternalID, inv.PayAmount, inv.PayAddress, inv.PayCurrency,
		inv.NetworkName, inv.QRCode, expiresAt))
	if err == nil {
		return order, nil
	}
	if isPgError(err, pgUniqueViolation) {
		return repository.Order{}, repository.ErrExternalIDTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repository.Order{}, &payment.StoreError{Op: "attach invoice", Err: err}
	}

	// условие не сработало: выясняем почему
	current, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return repository.Order{}, err
	}
	if current.Status.Terminal() {
		return repository.Order{}, repository.ErrOrderClosed
	}
	return repository.Order{}, repository.ErrInvoiceAlreadyAttached
}

// ApplyStatus один условный UPDATE; конкурентные вызовы сериализуются блокировкой строки,
// и только первый видит нетерминальный статус
func (r *Repository) ApplyStatus(ctx context.Context, key string, kind payment.KeyKind, status payment.Status) (repository.Order, bool, error) {
	if !status.Terminal() {
		return repository.Order{}, false, fmt.Errorf("apply status %q: only terminal statuses can be applied", status)
	}

	column, err := keyColumn(kind)
	if err != nil {
		return repository.Order{}, false, err
	}

	order, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $1, updated_at = now()
		 WHERE `+column+` = $2 AND status NOT IN `+terminalStatuses+`
		 RETURNING `+orderColumns,
		string(status), key))
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repository.Order{}, false, &payment.StoreError{Op: "apply status", Err: err}
	}

	// no-op дубликат или неизвестный заказ
	current, err := r.getOrder(ctx, column, key)
	if err != nil {
		return repository.Order{}, false, err
	}
	return current, false, nil
}

func (r *Repository) ListExpired(ctx context.Context, before time.Time, limit int) ([]repository.Order, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'unpaid' AND external_id IS NOT NULL AND expires_at < $1
		 ORDER BY expires_at
		 LIMIT $2`,
		before.UTC(), limit)
	if err != nil {
		return nil, &payment.StoreError{Op: "list expired", Err: err}
	}
	defer rows.Close()

	orders := make([]repository.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, &payment.StoreError{Op: "list expired", Err: err}
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, &payment.StoreError{Op: "list expired", Err: err}
	}
	return orders, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanOrder(row pgx.Row) (repository.Order, error) {
	var o repository.Order
	var status string
	var expiresAt *time.Time
	err := row.Scan(&o.ID, &o.JobID, &o.Amount, &o.TipAmount, &o.Currency, &o.Email, &o.Phone, &status,
		&o.ExternalID, &o.PayAmount, &o.PayAddress, &o.PayCurrency,
		&o.NetworkName, &o.QRCode, &expiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return repository.Order{}, err
	}
	o.Status = payment.Status(status)
	if expiresAt != nil {
		o.ExpiresAt = expiresAt.UTC()
	}
	return o, nil
}

func keyColumn(kind payment.KeyKind) (string, error) {
	switch kind {
	case payment.KeyOrderID:
		return "id", nil
	case payment.KeyExternalID:
		return "external_id", nil
	default:
		return "", fmt.Errorf("unknown key kind %q", kind)
	}
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
