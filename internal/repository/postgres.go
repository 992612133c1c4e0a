// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/akulenkov/grocery-orders/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrAddressNotFound возвращается, если адрес доставки не найден.
	ErrAddressNotFound = errors.New("address not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при попытке повторно сохранить заказ по тому же платежу.
	ErrOrderExists = errors.New("order already exists for payment")
)

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

// withRetry повторяет fn при ошибках сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetAddressByID возвращает адрес доставки по идентификатору.
func (r *PostgresRepository) GetAddressByID(ctx context.Context, id int64) (*model.Address, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, address_line, city, state, pincode, country, mobile
		 FROM addresses WHERE id = $1`,
		id,
	)

	var a model.Address
	err := row.Scan(&a.ID, &a.UserID, &a.AddressLine, &a.City, &a.State, &a.Pincode, &a.Country, &a.Mobile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return &a, nil
}

// GetCartByUser возвращает текущее содержимое корзины пользователя
// вместе с данными товаров.
func (r *PostgresRepository) GetCartByUser(ctx context.Context, userID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.image, p.price, p.discount, c.quantity
		 FROM cart_items c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1
		 ORDER BY c.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var (
			item       model.CartItem
			priceCents int64
			discount   int32
		)
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Image, &priceCents, &discount, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.Price = float64(priceCents) / 100
		item.Discount = float64(discount)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// CreateOrder сохраняет заказ с позициями и очищает корзину пользователя
// в одной транзакции, чтобы повтор запроса не приводил к дублям.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (order_id, user_id, payment_id, payment_status, delivery_address, subtotal_amount, total_amount)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, received, created_at, updated_at`,
			order.OrderID,
			order.UserID,
			order.PaymentID,
			string(order.PaymentStatus),
			order.AddressID,
			toCents(order.SubTotalAmount),
			toCents(order.TotalAmount),
		).Scan(&order.ID, &order.Received, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrOrderExists, order.PaymentID)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range order.Items {
			_, err = tx.Exec(ctx,
				`INSERT INTO order_items (order_ref, product_id, name, image, price, discount, quantity)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				order.ID,
				item.ProductID,
				item.Name,
				item.Image,
				toCents(item.Price),
				int32(item.Discount),
				item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, order.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя от новых к старым.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`WHERE o.user_id = $1 ORDER BY o.created_at DESC`,
		userID,
	)
}

// GetAllOrders возвращает все заказы магазина.
func (r *PostgresRepository) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return r.selectOrders(ctx, ``)
}

func (r *PostgresRepository) selectOrders(ctx context.Context, tail string, args ...any) ([]model.Order, error) {
	query := `SELECT o.id, o.order_id, o.user_id, o.payment_id, o.payment_status, o.delivery_address,
	                 o.subtotal_amount, o.total_amount, o.received, o.created_at, o.updated_at,
	                 a.user_id, a.address_line, a.city, a.state, a.pincode, a.country, a.mobile
	          FROM orders o
	          JOIN addresses a ON a.id = o.delivery_address ` + tail

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	byRef := make(map[int64]int)

	for rows.Next() {
		var (
			o        model.Order
			a        model.Address
			subCents int64
			totCents int64
			status   string
		)
		err := rows.Scan(
			&o.ID, &o.OrderID, &o.UserID, &o.PaymentID, &status, &o.AddressID,
			&subCents, &totCents, &o.Received, &o.CreatedAt, &o.UpdatedAt,
			&a.UserID, &a.AddressLine, &a.City, &a.State, &a.Pincode, &a.Country, &a.Mobile,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		o.PaymentStatus = model.PaymentStatus(status)
		o.SubTotalAmount = float64(subCents) / 100
		o.TotalAmount = float64(totCents) / 100
		a.ID = o.AddressID
		o.Address = &a

		byRef[o.ID] = len(orders)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	refs := make([]int64, 0, len(orders))
	for ref := range byRef {
		refs = append(refs, ref)
	}

	if err := r.attachItems(ctx, orders, byRef, refs); err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *PostgresRepository) attachItems(ctx context.Context, orders []model.Order, byRef map[int64]int, refs []int64) error {
	rows, err := r.pool.Query(ctx,
		`SELECT order_ref, product_id, name, image, price, discount, quantity
		 FROM order_items
		 WHERE order_ref = ANY($1)
		 ORDER BY id`,
		refs,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ref        int64
			item       model.OrderItem
			priceCents int64
			discount   int32
		)
		if err := rows.Scan(&ref, &item.ProductID, &item.Name, &item.Image, &priceCents, &discount, &item.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.Price = float64(priceCents) / 100
		item.Discount = float64(discount)

		if idx, ok := byRef[ref]; ok {
			orders[idx].Items = append(orders[idx].Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

// GetOrderByPaymentID возвращает заказ по идентификатору платежа.
func (r *PostgresRepository) GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, user_id, payment_id, payment_status, delivery_address,
		        subtotal_amount, total_amount, received, created_at, updated_at
		 FROM orders
		 WHERE payment_id = $1`,
		paymentID,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by payment: %w", err)
	}

	return o, nil
}

// SetOrderReceived обновляет признак получения заказа и возвращает обновлённый заказ.
func (r *PostgresRepository) SetOrderReceived(ctx context.Context, orderID string, received bool) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET received = $2, updated_at = now()
		 WHERE order_id = $1
		 RETURNING id, order_id, user_id, payment_id, payment_status, delivery_address,
		           subtotal_amount, total_amount, received, created_at, updated_at`,
		orderID, received,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update received: %w", err)
	}

	byRef := map[int64]int{o.ID: 0}
	orders := []model.Order{*o}
	if err := r.attachItems(ctx, orders, byRef, []int64{o.ID}); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o        model.Order
		subCents int64
		totCents int64
		status   string
	)
	err := row.Scan(
		&o.ID, &o.OrderID, &o.UserID, &o.PaymentID, &status, &o.AddressID,
		&subCents, &totCents, &o.Received, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentStatus = model.PaymentStatus(status)
	o.SubTotalAmount = float64(subCents) / 100
	o.TotalAmount = float64(totCents) / 100

	return &o, nil
}

func toCents(v float64) int64 {
	return int64(v*100 + 0.5)
}
