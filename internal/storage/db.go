package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

type DB struct {
	conn *sql.DB
}

type RunRow struct {
	ID        int
	SessionID string
	Kind      string
	Digest    string
	Timings   map[string]float64
	Counts    map[string]int
	CreatedAt string
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS purchases (
  orderId TEXT NOT NULL,
  productName TEXT NOT NULL,
  productId TEXT,
  purchaseDate TEXT NOT NULL,
  quantity REAL NOT NULL,
  unitPrice REAL NOT NULL,
  position INTEGER NOT NULL,
  PRIMARY KEY(orderId, productName)
);
CREATE INDEX IF NOT EXISTS idx_purchases_productName ON purchases(productName);

CREATE TABLE IF NOT EXISTS synced_orders (
  orderId TEXT PRIMARY KEY,
  syncedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sessionId TEXT NOT NULL,
  kind TEXT NOT NULL,
  digest TEXT NOT NULL DEFAULT '',
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const metaLastSyncedAt = "history.last_synced_at"

// Load reads the whole history in stored order.
func (d *DB) Load(ctx context.Context) (internal.PurchaseHistory, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT orderId, productName, productId, purchaseDate, quantity, unitPrice
FROM purchases ORDER BY position ASC`)
	if err != nil {
		return internal.PurchaseHistory{}, err
	}
	defer rows.Close()

	h := internal.PurchaseHistory{Records: []internal.PurchaseRecord{}, SyncedOrderIDs: []string{}}
	for rows.Next() {
		var r internal.PurchaseRecord
		if err := rows.Scan(&r.OrderID, &r.ProductName, &r.ProductID, &r.PurchaseDate, &r.Quantity, &r.UnitPrice); err != nil {
			return internal.PurchaseHistory{}, err
		}
		h.Records = append(h.Records, r)
	}
	if err := rows.Err(); err != nil {
		return internal.PurchaseHistory{}, err
	}

	idRows, err := d.conn.QueryContext(ctx, `SELECT orderId FROM synced_orders ORDER BY orderId ASC`)
	if err != nil {
		return internal.PurchaseHistory{}, err
	}
	defer idRows.Close()
	for idRows.Next() {
		var id string
		if err := idRows.Scan(&id); err != nil {
			return internal.PurchaseHistory{}, err
		}
		h.SyncedOrderIDs = append(h.SyncedOrderIDs, id)
	}
	if err := idRows.Err(); err != nil {
		return internal.PurchaseHistory{}, err
	}
	h.OrdersCount = len(h.SyncedOrderIDs)

	last, err := d.GetMetadata(ctx, metaLastSyncedAt)
	if err != nil {
		return internal.PurchaseHistory{}, err
	}
	h.LastSyncedAt = last
	return h, nil
}

// Save replaces the stored history in one transaction.
func (d *DB) Save(ctx context.Context, h internal.PurchaseHistory) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM synced_orders`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO purchases (orderId, productName, productId, purchaseDate, quantity, unitPrice, position)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(orderId, productName) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range h.Records {
		if _, err := stmt.ExecContext(ctx, r.OrderID, r.ProductName, r.ProductID, r.PurchaseDate, r.Quantity, r.UnitPrice, i); err != nil {
			return err
		}
	}
	for _, id := range h.SyncedOrderIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO synced_orders (orderId) VALUES (?) ON CONFLICT(orderId) DO NOTHING`, id); err != nil {
			return err
		}
	}
	if h.LastSyncedAt != nil {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, metaLastSyncedAt, *h.LastSyncedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) InsertRun(ctx context.Context, sessionID, kind, digest string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.ExecContext(ctx, `INSERT INTO runs (sessionId, kind, digest, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		sessionID, kind, digest, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, sessionId, kind, digest, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Kind, &row.Digest, &timingsJSON, &countsJSON, &row.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &row.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
