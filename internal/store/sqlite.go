package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tradedesk/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ TradeStore = (*SQLiteStore)(nil)
var _ RiskStore = (*SQLiteStore)(nil)
var _ HistoryStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL UNIQUE,
	token        TEXT NOT NULL DEFAULT '',
	entry_time   INTEGER NOT NULL,
	entry_price  REAL NOT NULL,
	initial_stop REAL NOT NULL,
	stop_loss    REAL NOT NULL,
	target       REAL NOT NULL,
	initial_qty  INTEGER NOT NULL,
	current_qty  INTEGER NOT NULL,
	booked_pnl   REAL NOT NULL DEFAULT 0,
	auto_exit    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS adjustments (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id TEXT NOT NULL REFERENCES trades(trade_id) ON DELETE CASCADE,
	at       INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	qty      INTEGER NOT NULL,
	price    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_pool (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	used_risk      REAL NOT NULL,
	available_risk REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS historical_trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	entry_time  INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_time   INTEGER NOT NULL,
	exit_price  REAL NOT NULL,
	final_pnl   REAL NOT NULL,
	highest_qty INTEGER NOT NULL
);
`

// SQLiteStore implements TradeStore, RiskStore, and HistoryStore backed by a
// SQLite database. The connection pool is capped at one connection so all
// transactions, including the risk-pool read-modify-write, are serialized at
// the database level.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and seeds the risk pool row with initialAvailable if it
// does not exist yet.
func NewSQLiteStore(dbPath string, initialAvailable float64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO risk_pool (id, used_risk, available_risk) VALUES (1, 0, ?)`,
		initialAvailable,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding risk pool: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// TradeStore implementation
// ---------------------------------------------------------------------------

// SaveTrade inserts a new open trade and its adjustment log.
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (trade_id, symbol, token, entry_time, entry_price,
			initial_stop, stop_loss, target, initial_qty, current_qty,
			booked_pnl, auto_exit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.Symbol, trade.Token, trade.EntryTime.UnixMilli(),
		trade.EntryPrice, trade.InitialStop, trade.StopLoss, trade.Target,
		trade.InitialQty, trade.CurrentQty, trade.BookedPnL, boolToInt(trade.AutoExit),
	)
	if err != nil {
		return fmt.Errorf("inserting trade %s: %w", trade.Symbol, err)
	}

	for _, adj := range trade.Adjustments {
		if err := insertAdjustment(ctx, tx, trade.ID, adj); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTrade retrieves a trade by ID, or (nil, nil) if it does not exist.
func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (*domain.Trade, error) {
	return s.getTrade(ctx, `WHERE trade_id = ?`, id)
}

// GetTradeBySymbol retrieves the open trade for a symbol, or (nil, nil).
func (s *SQLiteStore) GetTradeBySymbol(ctx context.Context, symbol string) (*domain.Trade, error) {
	return s.getTrade(ctx, `WHERE symbol = ?`, symbol)
}

func (s *SQLiteStore) getTrade(ctx context.Context, where string, arg any) (*domain.Trade, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trade_id, symbol, token, entry_time, entry_price, initial_stop,
			stop_loss, target, initial_qty, current_qty, booked_pnl, auto_exit
		FROM trades `+where, arg)

	trade, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	trade.Adjustments, err = s.listAdjustments(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// ListTrades returns all open trades ordered by entry time.
func (s *SQLiteStore) ListTrades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, symbol, token, entry_time, entry_price, initial_stop,
			stop_loss, target, initial_qty, current_qty, booked_pnl, auto_exit
		FROM trades ORDER BY entry_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range trades {
		trades[i].Adjustments, err = s.listAdjustments(ctx, trades[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return trades, nil
}

// UpdateTrade persists the mutable fields of an existing trade.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET stop_loss = ?, target = ?, current_qty = ?, booked_pnl = ?, auto_exit = ?
		WHERE trade_id = ?`,
		trade.StopLoss, trade.Target, trade.CurrentQty, trade.BookedPnL,
		boolToInt(trade.AutoExit), trade.ID,
	)
	if err != nil {
		return fmt.Errorf("updating trade %s: %w", trade.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating trade %s: no such trade", trade.ID)
	}
	return nil
}

// AppendAdjustment appends one entry to a trade's adjustment log.
func (s *SQLiteStore) AppendAdjustment(ctx context.Context, tradeID string, adj domain.Adjustment) error {
	return insertAdjustment(ctx, s.db, tradeID, adj)
}

// CloseTrade deletes the open trade and writes its historical record in one
// transaction, so a failed write leaves the open trade in place.
func (s *SQLiteStore) CloseTrade(ctx context.Context, tradeID string, rec domain.HistoricalTrade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE trade_id = ?`, tradeID)
	if err != nil {
		return fmt.Errorf("deleting trade %s: %w", tradeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("closing trade %s: no such trade", tradeID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO historical_trades (symbol, entry_time, entry_price,
			exit_time, exit_price, final_pnl, highest_qty)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Symbol, rec.EntryTime.UnixMilli(), rec.EntryPrice,
		rec.ExitTime.UnixMilli(), rec.ExitPrice, rec.FinalPnL, rec.HighestQty,
	)
	if err != nil {
		return fmt.Errorf("recording exit for %s: %w", rec.Symbol, err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// RiskStore implementation
// ---------------------------------------------------------------------------

// RiskPool returns the current risk pool state.
func (s *SQLiteStore) RiskPool(ctx context.Context) (domain.RiskPool, error) {
	var pool domain.RiskPool
	err := s.db.QueryRowContext(ctx,
		`SELECT used_risk, available_risk FROM risk_pool WHERE id = 1`,
	).Scan(&pool.Used, &pool.Available)
	if err != nil {
		return domain.RiskPool{}, fmt.Errorf("reading risk pool: %w", err)
	}
	return pool, nil
}

// UpdateRiskPool runs fn on the current pool inside a transaction and
// persists the result. The single-connection pool serializes concurrent
// callers at the database level.
func (s *SQLiteStore) UpdateRiskPool(ctx context.Context, fn func(domain.RiskPool) (domain.RiskPool, error)) (domain.RiskPool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.RiskPool{}, err
	}
	defer tx.Rollback()

	var pool domain.RiskPool
	err = tx.QueryRowContext(ctx,
		`SELECT used_risk, available_risk FROM risk_pool WHERE id = 1`,
	).Scan(&pool.Used, &pool.Available)
	if err != nil {
		return domain.RiskPool{}, fmt.Errorf("reading risk pool: %w", err)
	}

	next, err := fn(pool)
	if err != nil {
		return domain.RiskPool{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE risk_pool SET used_risk = ?, available_risk = ? WHERE id = 1`,
		next.Used, next.Available,
	); err != nil {
		return domain.RiskPool{}, fmt.Errorf("writing risk pool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.RiskPool{}, err
	}
	return next, nil
}

// ---------------------------------------------------------------------------
// HistoryStore implementation
// ---------------------------------------------------------------------------

// ListHistory returns exited trades, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoricalTrade, error) {
	query := `
		SELECT symbol, entry_time, entry_price, exit_time, exit_price,
			final_pnl, highest_qty
		FROM historical_trades ORDER BY exit_time DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.HistoricalTrade
	for rows.Next() {
		var rec domain.HistoricalTrade
		var entryMs, exitMs int64
		if err := rows.Scan(&rec.Symbol, &entryMs, &rec.EntryPrice,
			&exitMs, &rec.ExitPrice, &rec.FinalPnL, &rec.HighestQty); err != nil {
			return nil, err
		}
		rec.EntryTime = time.UnixMilli(entryMs).UTC()
		rec.ExitTime = time.UnixMilli(exitMs).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAdjustment(ctx context.Context, db execer, tradeID string, adj domain.Adjustment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO adjustments (trade_id, at, kind, qty, price)
		VALUES (?, ?, ?, ?, ?)`,
		tradeID, adj.At.UnixMilli(), string(adj.Kind), adj.Qty, adj.Price,
	)
	if err != nil {
		return fmt.Errorf("appending adjustment for %s: %w", tradeID, err)
	}
	return nil
}

func (s *SQLiteStore) listAdjustments(ctx context.Context, tradeID string) ([]domain.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, kind, qty, price FROM adjustments
		WHERE trade_id = ? ORDER BY id`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjs []domain.Adjustment
	for rows.Next() {
		var adj domain.Adjustment
		var ms int64
		var kind string
		if err := rows.Scan(&ms, &kind, &adj.Qty, &adj.Price); err != nil {
			return nil, err
		}
		adj.At = time.UnixMilli(ms).UTC()
		adj.Kind = domain.AdjustmentKind(kind)
		adjs = append(adjs, adj)
	}
	return adjs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var trade domain.Trade
	var entryMs int64
	var autoExit int
	err := row.Scan(&trade.ID, &trade.Symbol, &trade.Token, &entryMs,
		&trade.EntryPrice, &trade.InitialStop, &trade.StopLoss, &trade.Target,
		&trade.InitialQty, &trade.CurrentQty, &trade.BookedPnL, &autoExit)
	if err != nil {
		return nil, err
	}
	trade.EntryTime = time.UnixMilli(entryMs).UTC()
	trade.AutoExit = autoExit == 1
	return &trade, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
