// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/swordsar/digistore-bot/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ с указанным идентификатором не найден.
var ErrOrderNotFound = errors.New("order not found")

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// UpsertUser создаёт пользователя, если его ещё нет. Повторные вызовы — no-op.
func (r *PostgresRepository) UpsertUser(ctx context.Context, id int64, username, fullName string) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (user_id, username, full_name) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id) DO NOTHING`,
			id, username, fullName,
		)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
}

// CreateOrder сохраняет новый заказ со статусом pending и возвращает его идентификатор.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID int64, kind model.OrderKind, recipient string, details model.OrderDetails, amountRUB float64, method model.PaymentMethod) (int64, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("marshal details: %w", err)
	}

	var id int64
	err = r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO orders (user_id, order_type, recipient, details, amount_rub, payment_method, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			userID, string(kind), recipient, detailsJSON, rubToKopecks(amountRUB), string(method), string(model.OrderStatusPending),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

// SetStatus обновляет статус заказа. Возвращает false, если заказ не найден.
// Легальность перехода здесь не проверяется — за это отвечает слой service.
func (r *PostgresRepository) SetStatus(ctx context.Context, orderID int64, status model.OrderStatus) (bool, error) {
	var changed bool
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1`,
			orderID, string(status),
		)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	return changed, nil
}

// SetInvoiceID записывает идентификатор счёта платёжного шлюза для заказа.
func (r *PostgresRepository) SetInvoiceID(ctx context.Context, orderID int64, invoiceID string) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE orders SET invoice_id = $2 WHERE id = $1`,
			orderID, invoiceID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("set invoice id: %w", err)
	}
	return nil
}

// AttachPaymentPhoto сохраняет ссылку на фото оплаты в details заказа,
// не затрагивая остальные ключи. Возвращает false, если заказ не найден.
func (r *PostgresRepository) AttachPaymentPhoto(ctx context.Context, orderID int64, photoRef string) (bool, error) {
	var changed bool
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET details = jsonb_set(COALESCE(details, '{}'::jsonb), '{payment_photo}', to_jsonb($2::text))
			 WHERE id = $1`,
			orderID, photoRef,
		)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("attach payment photo: %w", err)
	}
	return changed, nil
}

const orderColumns = `id, user_id, order_type, recipient, details, amount_rub, payment_method, status, invoice_id, created_at`

// GetOrder возвращает заказ по идентификатору или ErrOrderNotFound.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var o model.Order
	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
			orderID,
		)
		return scanOrder(row, &o)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// ListActiveOrders возвращает заказы, не достигшие конечного статуса, новые первыми.
func (r *PostgresRepository) ListActiveOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+orderColumns+`
			 FROM orders
			 WHERE status NOT IN ($1, $2)
			 ORDER BY created_at DESC, id DESC`,
			string(model.OrderStatusCompleted), string(model.OrderStatusCancelled),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			var o model.Order
			if err := scanOrder(rows, &o); err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, o *model.Order) error {
	var (
		kind          string
		detailsJSON   []byte
		amountKopecks int64
		method        string
		status        string
		invoiceID     *string
	)

	if err := row.Scan(&o.ID, &o.UserID, &kind, &o.Recipient, &detailsJSON, &amountKopecks, &method, &status, &invoiceID, &o.CreatedAt); err != nil {
		return err
	}

	o.Kind = model.OrderKind(kind)
	o.AmountRUB = float64(amountKopecks) / 100
	o.Method = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	o.InvoiceID = invoiceID

	// Битый details не должен ронять выборку: трактуем его как пустой.
	o.Details = model.OrderDetails{}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &o.Details); err != nil {
			o.Details = model.OrderDetails{}
		}
	}

	return nil
}

func rubToKopecks(rub float64) int64 {
	return int64(math.Round(rub * 100))
}
