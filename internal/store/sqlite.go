package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tws-bridge/internal/models"
)

// SQLiteStore implements OrderStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based order store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Orders table, keyed by the broker-assigned order id
	CREATE TABLE IF NOT EXISTS orders (
		order_id INTEGER PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		limit_price REAL,
		trigger_price REAL,
		trailing_percent REAL,
		tif TEXT,
		status TEXT NOT NULL,
		filled_qty INTEGER DEFAULT 0,
		avg_fill_price REAL DEFAULT 0,
		correlation_id TEXT,
		strategy TEXT,
		parent_id INTEGER DEFAULT 0,
		oca_group TEXT,
		oca_type INTEGER DEFAULT 0,
		placed_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_correlation ON orders(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

	-- Status transition log for audit
	CREATE TABLE IF NOT EXISTS order_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		filled_qty INTEGER DEFAULT 0,
		avg_fill_price REAL DEFAULT 0,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (order_id) REFERENCES orders(order_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveOrder inserts or replaces the record for an order and logs the
// transition.
func (s *SQLiteStore) SaveOrder(ctx context.Context, order models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			order_id, symbol, side, type, quantity, limit_price, trigger_price,
			trailing_percent, tif, status, filled_qty, avg_fill_price,
			correlation_id, strategy, parent_id, oca_group, oca_type,
			placed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			symbol = excluded.symbol,
			side = excluded.side,
			type = excluded.type,
			quantity = excluded.quantity,
			limit_price = excluded.limit_price,
			trigger_price = excluded.trigger_price,
			trailing_percent = excluded.trailing_percent,
			tif = excluded.tif,
			status = excluded.status,
			filled_qty = excluded.filled_qty,
			avg_fill_price = excluded.avg_fill_price,
			updated_at = excluded.updated_at`,
		order.OrderID, order.Symbol, string(order.Side), string(order.Type),
		order.Quantity, order.LimitPrice, order.TriggerPrice, order.TrailingPercent,
		string(order.TIF), string(order.Status), order.FilledQty, order.AvgFillPrice,
		order.CorrelationID, order.Strategy, order.ParentID, order.OCAGroup,
		int(order.OCAType), order.PlacedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("saving order %d: %w", order.OrderID, err)
	}
	return s.logTransition(ctx, order.OrderID, order.Status, order.FilledQty, order.AvgFillPrice)
}

// UpdateOrderStatus records a status transition for an existing order.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus, filledQty int, avgFillPrice float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, filled_qty = ?, avg_fill_price = ?, updated_at = ?
		WHERE order_id = ?`,
		string(status), filledQty, avgFillPrice, time.Now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating order %d: no such order", orderID)
	}
	return s.logTransition(ctx, orderID, status, filledQty, avgFillPrice)
}

func (s *SQLiteStore) logTransition(ctx context.Context, orderID int64, status models.OrderStatus, filledQty int, avgFillPrice float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_transitions (order_id, status, filled_qty, avg_fill_price)
		VALUES (?, ?, ?, ?)`,
		orderID, string(status), filledQty, avgFillPrice,
	)
	if err != nil {
		return fmt.Errorf("logging transition for order %d: %w", orderID, err)
	}
	return nil
}

// GetOrder returns the stored record for an order id.
func (s *SQLiteStore) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, selectOrders+" WHERE order_id = ?", orderID)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d not found in store", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading order %d: %w", orderID, err)
	}
	return order, nil
}

// OrdersByCorrelation returns all legs recorded under a correlation id.
func (s *SQLiteStore) OrdersByCorrelation(ctx context.Context, correlationID string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, selectOrders+" WHERE correlation_id = ? ORDER BY order_id", correlationID)
	if err != nil {
		return nil, fmt.Errorf("querying correlation %s: %w", correlationID, err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning correlation %s: %w", correlationID, err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// LiveBracketCorrelations returns correlation ids with at least one
// non-terminal leg.
func (s *SQLiteStore) LiveBracketCorrelations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT correlation_id FROM orders
		WHERE correlation_id != ''
		  AND status NOT IN (?, ?)
		ORDER BY correlation_id`,
		string(models.StatusFilled), string(models.StatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("querying live correlations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectOrders = `
	SELECT order_id, symbol, side, type, quantity, limit_price, trigger_price,
	       trailing_percent, tif, status, filled_qty, avg_fill_price,
	       correlation_id, strategy, parent_id, oca_group, oca_type,
	       placed_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var side, otype, tif, status string
	var ocaType int
	err := row.Scan(
		&o.OrderID, &o.Symbol, &side, &otype, &o.Quantity, &o.LimitPrice,
		&o.TriggerPrice, &o.TrailingPercent, &tif, &status, &o.FilledQty,
		&o.AvgFillPrice, &o.CorrelationID, &o.Strategy, &o.ParentID,
		&o.OCAGroup, &ocaType, &o.PlacedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = models.OrderSide(side)
	o.Type = models.OrderType(otype)
	o.TIF = models.TimeInForce(tif)
	o.Status = models.OrderStatus(status)
	o.OCAType = models.OCAType(ocaType)
	return &o, nil
}
