package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists historical data to a SQLite database. Timestamps
// are stored as unix milliseconds.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the dashboard and CLI read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "recorder").Logger(),
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			cycle_id       TEXT,
			action         TEXT NOT NULL,
			asset          TEXT NOT NULL,
			price          REAL NOT NULL,
			amount_usd     REAL NOT NULL,
			leverage       INTEGER DEFAULT 1,
			pnl            REAL DEFAULT 0,
			pnl_percentage REAL DEFAULT 0,
			reasoning      TEXT,
			success        INTEGER DEFAULT 1,
			error_message  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,

		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			total_value    REAL NOT NULL,
			cash           REAL NOT NULL,
			positions_json TEXT,
			roi            REAL NOT NULL,
			total_trades   INTEGER DEFAULT 0,
			winning_trades INTEGER DEFAULT 0,
			losing_trades  INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_portfolio_ts ON portfolio_snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			cycle_id      TEXT,
			action        TEXT,
			asset         TEXT,
			decision_json TEXT NOT NULL,
			reasoning     TEXT,
			confidence    REAL DEFAULT 0,
			executed      INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS exit_plans (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp              INTEGER NOT NULL,
			plan_id                TEXT NOT NULL,
			position_symbol        TEXT NOT NULL,
			entry_price            REAL NOT NULL,
			profit_target          REAL,
			stop_loss              REAL,
			invalidation_condition TEXT,
			invalidation_price     REAL,
			status                 TEXT NOT NULL DEFAULT 'active',
			created_at             INTEGER NOT NULL,
			triggered_at           INTEGER,
			trigger_type           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exit_plans_plan ON exit_plans(plan_id)`,

		`CREATE TABLE IF NOT EXISTS market_snapshots (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			price         REAL NOT NULL,
			regime        TEXT,
			snapshot_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_ts ON market_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) stamp(t time.Time) int64 {
	if t.IsZero() {
		t = r.now()
	}
	return t.UnixMilli()
}

func (r *SQLiteRecorder) RecordTrade(rec *TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO trades
		(timestamp, cycle_id, action, asset, price, amount_usd, leverage,
		 pnl, pnl_percentage, reasoning, success, error_message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.stamp(rec.Time), rec.CycleID, rec.Action, rec.Asset, rec.Price, rec.AmountUSD, rec.Leverage,
		rec.PnL, rec.PnLPct, rec.Reasoning, rec.Success, rec.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordPortfolio(snap *PortfolioSnapshot) error {
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO portfolio_snapshots
		(timestamp, total_value, cash, positions_json, roi, total_trades, winning_trades, losing_trades)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.stamp(snap.Time), snap.TotalValue, snap.Cash, string(positions), snap.ROI,
		snap.TotalTrades, snap.WinningTrades, snap.LosingTrades,
	)
	return err
}

func (r *SQLiteRecorder) RecordDecision(rec *DecisionRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO decisions
		(timestamp, cycle_id, action, asset, decision_json, reasoning, confidence, executed)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.stamp(rec.Time), rec.CycleID, rec.Action, rec.Asset, string(payload),
		rec.Reasoning, rec.Confidence, rec.Executed,
	)
	return err
}

func (r *SQLiteRecorder) RecordMarketSnapshot(snap model.MarketSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO market_snapshots
		(timestamp, symbol, price, regime, snapshot_json)
		VALUES (?,?,?,?,?)`,
		r.stamp(snap.GeneratedAt), snap.Symbol, snap.Price, string(snap.Regime), string(body),
	)
	return err
}

func (r *SQLiteRecorder) RecordExitPlan(plan model.ExitPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var triggeredAt any
	if plan.TriggeredAt != nil {
		triggeredAt = plan.TriggeredAt.UnixMilli()
	}
	_, err := r.db.Exec(`INSERT INTO exit_plans
		(timestamp, plan_id, position_symbol, entry_price, profit_target, stop_loss,
		 invalidation_condition, invalidation_price, status, created_at, triggered_at, trigger_type)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().UnixMilli(), plan.ID, plan.Symbol, plan.EntryPrice,
		nullable(plan.ProfitTarget), nullable(plan.StopLoss),
		plan.InvalidationText, nullable(plan.InvalidationPrice),
		string(plan.Status), r.stamp(plan.CreatedAt), triggeredAt, string(plan.TriggerType),
	)
	return err
}

const exitPlanColumns = `plan_id, position_symbol, entry_price, profit_target, stop_loss,
	invalidation_condition, invalidation_price, status, created_at, triggered_at, trigger_type`

func (r *SQLiteRecorder) ActiveExitPlans() ([]model.ExitPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT ` + exitPlanColumns + ` FROM exit_plans
		WHERE id IN (SELECT MAX(id) FROM exit_plans GROUP BY plan_id)
		  AND status = 'active'
		ORDER BY position_symbol`)
	if err != nil {
		return nil, err
	}
	return scanExitPlans(rows)
}

func (r *SQLiteRecorder) ExitPlanHistory(limit int) ([]model.ExitPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT `+exitPlanColumns+` FROM exit_plans
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanExitPlans(rows)
}

func scanExitPlans(rows *sql.Rows) ([]model.ExitPlan, error) {
	defer rows.Close()

	var out []model.ExitPlan
	for rows.Next() {
		var (
			p                      model.ExitPlan
			target, stop, invPrice sql.NullFloat64
			invText, trigger       sql.NullString
			status                 string
			createdAt              int64
			triggeredAt            sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &p.EntryPrice, &target, &stop,
			&invText, &invPrice, &status, &createdAt, &triggeredAt, &trigger); err != nil {
			return nil, err
		}
		p.ProfitTarget = floatPtr(target)
		p.StopLoss = floatPtr(stop)
		p.InvalidationPrice = floatPtr(invPrice)
		p.InvalidationText = invText.String
		p.Status = model.PlanStatus(status)
		p.CreatedAt = time.UnixMilli(createdAt)
		if triggeredAt.Valid {
			t := time.UnixMilli(triggeredAt.Int64)
			p.TriggeredAt = &t
		}
		p.TriggerType = model.TriggerType(trigger.String)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) PerformanceStats() (PerformanceStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		s                          PerformanceStats
		wins, losses               sql.NullInt64
		total, avg, maxWin, maxLos sql.NullFloat64
	)
	// Opens carry no PnL; only closing trades count.
	err := r.db.QueryRow(`SELECT
			COUNT(*),
			SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END),
			SUM(pnl), AVG(pnl), MAX(pnl), MIN(pnl)
		FROM trades
		WHERE success = 1 AND action != 'open_long'`).
		Scan(&s.TotalTrades, &wins, &losses, &total, &avg, &maxWin, &maxLos)
	if err != nil {
		return s, err
	}
	s.WinningTrades = int(wins.Int64)
	s.LosingTrades = int(losses.Int64)
	s.TotalPnL = total.Float64
	s.AvgPnL = avg.Float64
	s.MaxProfit = maxWin.Float64
	s.MaxLoss = maxLos.Float64
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}

	err = r.db.QueryRow(`SELECT total_value, cash, roi FROM portfolio_snapshots
		ORDER BY timestamp DESC, id DESC LIMIT 1`).
		Scan(&s.CurrentValue, &s.CurrentCash, &s.CurrentROI)
	if err != nil && err != sql.ErrNoRows {
		return s, err
	}
	return s, nil
}

func (r *SQLiteRecorder) Prune(before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := before.UnixMilli()
	var deleted int64
	for _, table := range []string{"market_snapshots", "decisions", "portfolio_snapshots"} {
		res, err := r.db.Exec(`DELETE FROM `+table+` WHERE timestamp < ?`, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
