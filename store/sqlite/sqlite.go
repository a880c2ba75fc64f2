/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Implements every persistence interface the engine depends on using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  agents:                Hierarchy nodes (upline_id self-reference)
  ranks:                 Data-driven rank table (override percent, level)
  schedules:             Payment schedule templates
  schedule_installments: Per-template installment rows
  transactions:          Commission transactions (installments_generated guard)
  installments:          Generated commission installments
  approvals:             Approval workflow records
  approval_history:      Append-only audit trail of status changes
  engine_config:         Named settings (forecast cutoff day)

CONCURRENCY:
  The two race-sensitive operations run inside a single SQL transaction
  with a conditional UPDATE as the guard:

  - CreateInstallments:   UPDATE transactions SET installments_generated=1
                          WHERE id=? AND installments_generated=0
                          followed by the batch insert. Zero rows affected
                          means another generation won; the tx rolls back
                          and no installment rows survive.
  - UpdateApprovalStatus: UPDATE approvals SET status=?
                          WHERE id=? AND status=?
                          followed by the history insert. Zero rows
                          affected surfaces as engine.ErrConflict.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go:        Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/commission-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ engine.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY between the conditional guards and their follow-up writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Agents (hierarchy nodes)
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rank TEXT NOT NULL,
		upline_id TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		FOREIGN KEY (upline_id) REFERENCES agents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_agents_upline ON agents(upline_id);

	-- Ranks (data-driven override table)
	CREATE TABLE IF NOT EXISTS ranks (
		rank TEXT PRIMARY KEY,
		override_percent TEXT NOT NULL,
		level INTEGER NOT NULL
	);

	-- Payment schedule templates
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedule_installments (
		schedule_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		percent TEXT NOT NULL,
		days_after INTEGER NOT NULL,
		description TEXT,
		PRIMARY KEY (schedule_id, number),
		FOREIGN KEY (schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
	);

	-- Commission transactions
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		schedule_id TEXT,
		split_percent TEXT NOT NULL,
		installments_generated INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id),
		FOREIGN KEY (schedule_id) REFERENCES schedules(id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_agent ON transactions(agent_id, tx_date);

	-- Generated installments
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		agent_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		percent TEXT NOT NULL,
		scheduled_date TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (transaction_id) REFERENCES transactions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_installments_transaction ON installments(transaction_id, number);
	CREATE INDEX IF NOT EXISTS idx_installments_agent_date ON installments(agent_id, scheduled_date);
	CREATE INDEX IF NOT EXISTS idx_installments_status_date ON installments(status, scheduled_date);

	-- Approvals
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		submitted_by TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		FOREIGN KEY (transaction_id) REFERENCES transactions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);

	CREATE TABLE IF NOT EXISTS approval_history (
		id TEXT PRIMARY KEY,
		approval_id TEXT NOT NULL,
		previous_status TEXT,
		new_status TEXT NOT NULL,
		actor TEXT NOT NULL,
		notes TEXT,
		at TEXT NOT NULL,
		FOREIGN KEY (approval_id) REFERENCES approvals(id)
	);
	CREATE INDEX IF NOT EXISTS idx_approval_history_approval ON approval_history(approval_id, at);

	-- Engine configuration
	CREATE TABLE IF NOT EXISTS engine_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.seedRanks()
}

// seedRanks inserts the default rank table on first run. Existing rows win.
func (s *Store) seedRanks() error {
	for _, def := range engine.DefaultRankDefinitions() {
		_, err := s.db.Exec(`
			INSERT INTO ranks (rank, override_percent, level)
			VALUES (?, ?, ?)
			ON CONFLICT(rank) DO NOTHING`,
			string(def.Rank), def.OverridePercent.String(), def.Level)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// AGENTS
// =============================================================================

func (s *Store) GetAgent(ctx context.Context, id engine.AgentID) (engine.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, rank, upline_id, active, created_at
		FROM agents WHERE id = ?`, string(id))
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return engine.Agent{}, fmt.Errorf("agent %s: %w", id, engine.ErrNotFound)
	}
	return a, err
}

func (s *Store) SaveAgent(ctx context.Context, a engine.Agent) error {
	var upline sql.NullString
	if a.UplineID != nil {
		upline = nullString(string(*a.UplineID))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, rank, upline_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			rank = excluded.rank,
			upline_id = excluded.upline_id,
			active = excluded.active`,
		string(a.ID), a.Name, string(a.Rank), upline,
		boolToInt(a.Active), a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: save agent: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) ListAgents(ctx context.Context) ([]engine.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, rank, upline_id, active, created_at
		FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list agents: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var out []engine.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// RANKS
// =============================================================================

func (s *Store) RankTable(ctx context.Context) (*engine.RankTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, override_percent, level FROM ranks ORDER BY level`)
	if err != nil {
		return nil, fmt.Errorf("%w: load ranks: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var defs []engine.RankDefinition
	for rows.Next() {
		var rank, percent string
		var level int
		if err := rows.Scan(&rank, &percent, &level); err != nil {
			return nil, err
		}
		defs = append(defs, engine.RankDefinition{
			Rank:            engine.Rank(rank),
			OverridePercent: engine.MustParseMoney(percent),
			Level:           level,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return engine.NewRankTable(defs), nil
}

func (s *Store) SaveRankDefinitions(ctx context.Context, defs []engine.RankDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ranks`); err != nil {
		return fmt.Errorf("%w: clear ranks: %v", engine.ErrPersistence, err)
	}
	for _, def := range defs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ranks (rank, override_percent, level) VALUES (?, ?, ?)`,
			string(def.Rank), def.OverridePercent.String(), def.Level)
		if err != nil {
			return fmt.Errorf("%w: insert rank %s: %v", engine.ErrPersistence, def.Rank, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *Store) GetSchedule(ctx context.Context, id engine.ScheduleID) (engine.PaymentScheduleTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_default, created_at
		FROM schedules WHERE id = ?`, string(id))
	t, err := s.scanSchedule(ctx, row)
	if err == sql.ErrNoRows {
		return engine.PaymentScheduleTemplate{}, fmt.Errorf("schedule %s: %w", id, engine.ErrNotFound)
	}
	return t, err
}

func (s *Store) GetDefaultSchedule(ctx context.Context) (engine.PaymentScheduleTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_default, created_at
		FROM schedules WHERE is_default = 1 LIMIT 1`)
	t, err := s.scanSchedule(ctx, row)
	if err == sql.ErrNoRows {
		return engine.PaymentScheduleTemplate{}, engine.ErrNoDefaultSchedule
	}
	return t, err
}

func (s *Store) SaveSchedule(ctx context.Context, t engine.PaymentScheduleTemplate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrPersistence, err)
	}
	defer tx.Rollback()

	if t.IsDefault {
		// Single default invariant: demote any other default first.
		_, err := tx.ExecContext(ctx, `
			UPDATE schedules SET is_default = 0 WHERE is_default = 1 AND id != ?`,
			string(t.ID))
		if err != nil {
			return fmt.Errorf("%w: demote default: %v", engine.ErrPersistence, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (id, name, description, is_default, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			is_default = excluded.is_default`,
		string(t.ID), t.Name, nullString(t.Description),
		boolToInt(t.IsDefault), t.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: save schedule: %v", engine.ErrPersistence, err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM schedule_installments WHERE schedule_id = ?`, string(t.ID)); err != nil {
		return fmt.Errorf("%w: clear template rows: %v", engine.ErrPersistence, err)
	}
	for _, tpl := range t.Installments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_installments (schedule_id, number, percent, days_after, description)
			VALUES (?, ?, ?, ?, ?)`,
			string(t.ID), tpl.Number, tpl.Percent.String(), tpl.DaysAfter, nullString(tpl.Description))
		if err != nil {
			return fmt.Errorf("%w: insert template row %d: %v", engine.ErrPersistence, tpl.Number, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListSchedules(ctx context.Context) ([]engine.PaymentScheduleTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, is_default, created_at
		FROM schedules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list schedules: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	// Collect header rows first; loadTemplateRows reuses the connection.
	type header struct {
		t engine.PaymentScheduleTemplate
	}
	var headers []header
	for rows.Next() {
		var t engine.PaymentScheduleTemplate
		var id, name, createdAt string
		var desc sql.NullString
		var isDefault int
		if err := rows.Scan(&id, &name, &desc, &isDefault, &createdAt); err != nil {
			return nil, err
		}
		t.ID = engine.ScheduleID(id)
		t.Name = name
		t.Description = desc.String
		t.IsDefault = isDefault != 0
		t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parse schedule time: %v", engine.ErrPersistence, err)
		}
		headers = append(headers, header{t})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	out := make([]engine.PaymentScheduleTemplate, 0, len(headers))
	for _, h := range headers {
		h.t.Installments, err = s.loadTemplateRows(ctx, string(h.t.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, h.t)
	}
	return out, nil
}

func (s *Store) loadTemplateRows(ctx context.Context, id string) ([]engine.InstallmentTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, percent, days_after, description
		FROM schedule_installments WHERE schedule_id = ? ORDER BY number`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load template rows: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var out []engine.InstallmentTemplate
	for rows.Next() {
		var tpl engine.InstallmentTemplate
		var percent string
		var desc sql.NullString
		if err := rows.Scan(&tpl.Number, &percent, &tpl.DaysAfter, &desc); err != nil {
			return nil, err
		}
		tpl.Percent = engine.MustParseMoney(percent)
		tpl.Description = desc.String
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) GetTransaction(ctx context.Context, id engine.TransactionID) (engine.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, commission_amount, tx_date, schedule_id,
		       split_percent, installments_generated, created_at
		FROM transactions WHERE id = ?`, string(id))
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return engine.Transaction{}, fmt.Errorf("transaction %s: %w", id, engine.ErrNotFound)
	}
	return t, err
}

func (s *Store) SaveTransaction(ctx context.Context, t engine.Transaction) error {
	var schedule sql.NullString
	if t.ScheduleID != nil {
		schedule = nullString(string(*t.ScheduleID))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, agent_id, commission_amount, tx_date, schedule_id,
			 split_percent, installments_generated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			commission_amount = excluded.commission_amount,
			tx_date = excluded.tx_date,
			schedule_id = excluded.schedule_id,
			split_percent = excluded.split_percent`,
		string(t.ID), string(t.AgentID), t.CommissionAmount.String(),
		t.Date.UTC().Format(time.RFC3339Nano), schedule,
		t.SplitPercent.String(), boolToInt(t.InstallmentsGenerated),
		t.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: save transaction: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) ListTransactionsByAgent(ctx context.Context, agentID engine.AgentID) ([]engine.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, commission_amount, tx_date, schedule_id,
		       split_percent, installments_generated, created_at
		FROM transactions WHERE agent_id = ? ORDER BY tx_date`, string(agentID))
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var out []engine.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const selectInstallment = `
	SELECT id, transaction_id, number, agent_id, amount, percent,
	       scheduled_date, status, paid_at, notes, created_at
	FROM installments`

func (s *Store) GetInstallment(ctx context.Context, id engine.InstallmentID) (engine.CommissionInstallment, error) {
	row := s.db.QueryRowContext(ctx, selectInstallment+` WHERE id = ?`, string(id))
	inst, err := scanInstallment(row)
	if err == sql.ErrNoRows {
		return engine.CommissionInstallment{}, fmt.Errorf("installment %s: %w", id, engine.ErrNotFound)
	}
	return inst, err
}

func (s *Store) InstallmentsByTransaction(ctx context.Context, txID engine.TransactionID) ([]engine.CommissionInstallment, error) {
	return s.queryInstallments(ctx,
		selectInstallment+` WHERE transaction_id = ? ORDER BY number`, string(txID))
}

func (s *Store) InstallmentsByAgent(ctx context.Context, agentID engine.AgentID) ([]engine.CommissionInstallment, error) {
	return s.queryInstallments(ctx,
		selectInstallment+` WHERE agent_id = ? ORDER BY scheduled_date`, string(agentID))
}

func (s *Store) DueInstallments(ctx context.Context, before time.Time) ([]engine.CommissionInstallment, error) {
	return s.queryInstallments(ctx,
		selectInstallment+` WHERE status = ? AND scheduled_date < ? ORDER BY scheduled_date`,
		string(engine.InstallmentPending), before.UTC().Format(time.RFC3339Nano))
}

func (s *Store) UpdateInstallment(ctx context.Context, inst engine.CommissionInstallment) error {
	var paidAt sql.NullString
	if inst.PaidAt != nil {
		paidAt = nullString(inst.PaidAt.UTC().Format(time.RFC3339Nano))
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE installments SET status = ?, paid_at = ?, notes = ?
		WHERE id = ?`,
		string(inst.Status), paidAt, nullString(inst.Notes), string(inst.ID))
	if err != nil {
		return fmt.Errorf("%w: update installment: %v", engine.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", engine.ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("installment %s: %w", inst.ID, engine.ErrNotFound)
	}
	return nil
}

// CreateInstallments flips the installments_generated guard and inserts the
// batch inside one SQL transaction. The conditional UPDATE is the race
// arbiter: the loser sees zero rows affected and everything rolls back.
func (s *Store) CreateInstallments(ctx context.Context, txID engine.TransactionID, batch []engine.CommissionInstallment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrPersistence, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET installments_generated = 1
		WHERE id = ? AND installments_generated = 0`, string(txID))
	if err != nil {
		return fmt.Errorf("%w: set generated flag: %v", engine.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", engine.ErrPersistence, err)
	}
	if n == 0 {
		// Distinguish "missing" from "already generated".
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM transactions WHERE id = ?`, string(txID)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: existence check: %v", engine.ErrPersistence, err)
		}
		if exists == 0 {
			return fmt.Errorf("transaction %s: %w", txID, engine.ErrNotFound)
		}
		return fmt.Errorf("transaction %s: %w", txID, engine.ErrAlreadyGenerated)
	}

	for _, inst := range batch {
		var paidAt sql.NullString
		if inst.PaidAt != nil {
			paidAt = nullString(inst.PaidAt.UTC().Format(time.RFC3339Nano))
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO installments
				(id, transaction_id, number, agent_id, amount, percent,
				 scheduled_date, status, paid_at, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(inst.ID), string(inst.TransactionID), inst.Number,
			string(inst.AgentID), inst.Amount.String(), inst.Percent.String(),
			inst.ScheduledDate.UTC().Format(time.RFC3339Nano),
			string(inst.Status), paidAt, nullString(inst.Notes),
			inst.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("%w: insert installment %d: %v", engine.ErrPersistence, inst.Number, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ResetInstallments(ctx context.Context, txID engine.TransactionID, newSchedule *engine.ScheduleID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM installments WHERE transaction_id = ?`, string(txID)); err != nil {
		return fmt.Errorf("%w: delete installments: %v", engine.ErrPersistence, err)
	}

	var res sql.Result
	if newSchedule != nil {
		res, err = tx.ExecContext(ctx, `
			UPDATE transactions SET installments_generated = 0, schedule_id = ?
			WHERE id = ?`, string(*newSchedule), string(txID))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE transactions SET installments_generated = 0
			WHERE id = ?`, string(txID))
	}
	if err != nil {
		return fmt.Errorf("%w: clear generated flag: %v", engine.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", engine.ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", txID, engine.ErrNotFound)
	}
	return tx.Commit()
}

func (s *Store) queryInstallments(ctx context.Context, query string, args ...any) ([]engine.CommissionInstallment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query installments: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var out []engine.CommissionInstallment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// =============================================================================
// APPROVALS
// =============================================================================

const selectApproval = `
	SELECT id, transaction_id, status, submitted_by, submitted_at, commission_amount
	FROM approvals`

func (s *Store) GetApproval(ctx context.Context, id engine.ApprovalID) (engine.CommissionApproval, error) {
	row := s.db.QueryRowContext(ctx, selectApproval+` WHERE id = ?`, string(id))
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return engine.CommissionApproval{}, fmt.Errorf("approval %s: %w", id, engine.ErrNotFound)
	}
	return a, err
}

func (s *Store) GetApprovalByTransaction(ctx context.Context, txID engine.TransactionID) (engine.CommissionApproval, error) {
	row := s.db.QueryRowContext(ctx, selectApproval+` WHERE transaction_id = ?`, string(txID))
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return engine.CommissionApproval{}, fmt.Errorf("approval for transaction %s: %w", txID, engine.ErrNotFound)
	}
	return a, err
}

func (s *Store) CreateApproval(ctx context.Context, a engine.CommissionApproval, opening engine.ApprovalHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrPersistence, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approvals
			(id, transaction_id, status, submitted_by, submitted_at, commission_amount)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.TransactionID), string(a.Status),
		a.SubmittedBy, a.SubmittedAt.UTC().Format(time.RFC3339Nano),
		a.CommissionAmount.String())
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("approval for transaction %s already exists: %w", a.TransactionID, engine.ErrConflict)
		}
		return fmt.Errorf("%w: insert approval: %v", engine.ErrPersistence, err)
	}

	if err := insertHistory(ctx, tx, opening); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateApprovalStatus is the optimistic-concurrency write. The conditional
// UPDATE guards against a stale read; the history insert rides the same SQL
// transaction so status and audit trail commit or fail together.
func (s *Store) UpdateApprovalStatus(ctx context.Context, id engine.ApprovalID, from, to engine.ApprovalStatus, entry engine.ApprovalHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrPersistence, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE approvals SET status = ? WHERE id = ? AND status = ?`,
		string(to), string(id), string(from))
	if err != nil {
		return fmt.Errorf("%w: update status: %v", engine.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", engine.ErrPersistence, err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM approvals WHERE id = ?`, string(id)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: existence check: %v", engine.ErrPersistence, err)
		}
		if exists == 0 {
			return fmt.Errorf("approval %s: %w", id, engine.ErrNotFound)
		}
		return fmt.Errorf("approval %s no longer in status %s: %w", id, from, engine.ErrConflict)
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ApprovalHistory(ctx context.Context, id engine.ApprovalID) ([]engine.ApprovalHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, approval_id, previous_status, new_status, actor, notes, at
		FROM approval_history WHERE approval_id = ? ORDER BY at, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: query history: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var out []engine.ApprovalHistoryEntry
	for rows.Next() {
		var e engine.ApprovalHistoryEntry
		var entryID, approvalID, newStatus, actor, at string
		var prev, notes sql.NullString
		if err := rows.Scan(&entryID, &approvalID, &prev, &newStatus, &actor, &notes, &at); err != nil {
			return nil, err
		}
		e.ID = entryID
		e.ApprovalID = engine.ApprovalID(approvalID)
		e.PreviousStatus = engine.ApprovalStatus(prev.String)
		e.NewStatus = engine.ApprovalStatus(newStatus)
		e.Actor = actor
		e.Notes = notes.String
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("%w: parse history time: %v", engine.ErrPersistence, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListApprovalsByStatus(ctx context.Context, status engine.ApprovalStatus) ([]engine.CommissionApproval, error) {
	rows, err := s.db.QueryContext(ctx,
		selectApproval+` WHERE status = ? ORDER BY submitted_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: query approvals: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var out []engine.CommissionApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, e engine.ApprovalHistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO approval_history
			(id, approval_id, previous_status, new_status, actor, notes, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.ApprovalID), nullString(string(e.PreviousStatus)),
		string(e.NewStatus), e.Actor, nullString(e.Notes),
		e.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: insert history: %v", engine.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// CONFIG
// =============================================================================

const cutoffDayKey = "forecast_cutoff_day"

func (s *Store) GetCutoffDay(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_config WHERE key = ?`, cutoffDayKey).Scan(&value)
	if err == sql.ErrNoRows {
		return engine.DefaultCutoffDay, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: load cutoff day: %v", engine.ErrPersistence, err)
	}
	var day int
	if _, err := fmt.Sscanf(value, "%d", &day); err != nil {
		return 0, fmt.Errorf("%w: parse cutoff day %q: %v", engine.ErrPersistence, value, err)
	}
	return day, nil
}

func (s *Store) SetCutoffDay(ctx context.Context, day int) error {
	if day < 1 || day > 31 {
		return &engine.ValidationError{Field: "cutoff_day", Message: "must be between 1 and 31"}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		cutoffDayKey, fmt.Sprintf("%d", day))
	if err != nil {
		return fmt.Errorf("%w: save cutoff day: %v", engine.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// SCANNERS & HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (engine.Agent, error) {
	var a engine.Agent
	var id, name, rank, createdAt string
	var upline sql.NullString
	var active int
	if err := row.Scan(&id, &name, &rank, &upline, &active, &createdAt); err != nil {
		return engine.Agent{}, err
	}
	a.ID = engine.AgentID(id)
	a.Name = name
	a.Rank = engine.Rank(rank)
	if upline.Valid {
		u := engine.AgentID(upline.String)
		a.UplineID = &u
	}
	a.Active = active != 0
	var err error
	a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return engine.Agent{}, fmt.Errorf("%w: parse agent time: %v", engine.ErrPersistence, err)
	}
	return a, nil
}

func (s *Store) scanSchedule(ctx context.Context, row rowScanner) (engine.PaymentScheduleTemplate, error) {
	var t engine.PaymentScheduleTemplate
	var id, name, createdAt string
	var desc sql.NullString
	var isDefault int
	if err := row.Scan(&id, &name, &desc, &isDefault, &createdAt); err != nil {
		return engine.PaymentScheduleTemplate{}, err
	}
	t.ID = engine.ScheduleID(id)
	t.Name = name
	t.Description = desc.String
	t.IsDefault = isDefault != 0
	var err error
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return engine.PaymentScheduleTemplate{}, fmt.Errorf("%w: parse schedule time: %v", engine.ErrPersistence, err)
	}
	t.Installments, err = s.loadTemplateRows(ctx, id)
	return t, err
}

func scanTransaction(row rowScanner) (engine.Transaction, error) {
	var t engine.Transaction
	var id, agentID, amount, txDate, split, createdAt string
	var schedule sql.NullString
	var generated int
	if err := row.Scan(&id, &agentID, &amount, &txDate, &schedule, &split, &generated, &createdAt); err != nil {
		return engine.Transaction{}, err
	}
	t.ID = engine.TransactionID(id)
	t.AgentID = engine.AgentID(agentID)
	t.CommissionAmount = engine.MustParseMoney(amount)
	t.SplitPercent = engine.MustParseMoney(split)
	if schedule.Valid {
		sid := engine.ScheduleID(schedule.String)
		t.ScheduleID = &sid
	}
	t.InstallmentsGenerated = generated != 0
	var err error
	t.Date, err = time.Parse(time.RFC3339Nano, txDate)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("%w: parse tx date: %v", engine.ErrPersistence, err)
	}
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("%w: parse tx time: %v", engine.ErrPersistence, err)
	}
	return t, nil
}

func scanInstallment(row rowScanner) (engine.CommissionInstallment, error) {
	var inst engine.CommissionInstallment
	var id, txID, agentID, amount, percent, scheduled, status, createdAt string
	var number int
	var paidAt, notes sql.NullString
	if err := row.Scan(&id, &txID, &number, &agentID, &amount, &percent,
		&scheduled, &status, &paidAt, &notes, &createdAt); err != nil {
		return engine.CommissionInstallment{}, err
	}
	inst.ID = engine.InstallmentID(id)
	inst.TransactionID = engine.TransactionID(txID)
	inst.Number = number
	inst.AgentID = engine.AgentID(agentID)
	inst.Amount = engine.MustParseMoney(amount)
	inst.Percent = engine.MustParseMoney(percent)
	inst.Status = engine.InstallmentStatus(status)
	inst.Notes = notes.String
	var err error
	inst.ScheduledDate, err = time.Parse(time.RFC3339Nano, scheduled)
	if err != nil {
		return engine.CommissionInstallment{}, fmt.Errorf("%w: parse scheduled date: %v", engine.ErrPersistence, err)
	}
	if paidAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, paidAt.String)
		if err != nil {
			return engine.CommissionInstallment{}, fmt.Errorf("%w: parse paid_at: %v", engine.ErrPersistence, err)
		}
		inst.PaidAt = &t
	}
	inst.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return engine.CommissionInstallment{}, fmt.Errorf("%w: parse installment time: %v", engine.ErrPersistence, err)
	}
	return inst, nil
}

func scanApproval(row rowScanner) (engine.CommissionApproval, error) {
	var a engine.CommissionApproval
	var id, txID, status, submittedBy, submittedAt, amount string
	if err := row.Scan(&id, &txID, &status, &submittedBy, &submittedAt, &amount); err != nil {
		return engine.CommissionApproval{}, err
	}
	a.ID = engine.ApprovalID(id)
	a.TransactionID = engine.TransactionID(txID)
	a.Status = engine.ApprovalStatus(status)
	a.SubmittedBy = submittedBy
	a.CommissionAmount = engine.MustParseMoney(amount)
	var err error
	a.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt)
	if err != nil {
		return engine.CommissionApproval{}, fmt.Errorf("%w: parse submitted_at: %v", engine.ErrPersistence, err)
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
