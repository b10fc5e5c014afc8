// Package remote persists authenticated users' ledgers in PostgreSQL.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/log"
)

// Store implements ledger.Store with one row per record.
type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ ledger.Store = (*Store)(nil)

// Open connects to databaseURL, migrates the schema and verifies the connection.
func Open(ctx context.Context, databaseURL string, logger *log.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if err := RunMigrations(cfg); err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logger == nil {
		logger = log.NewDiscard()
	}
	logger = logger.WithComponent(log.ComponentRemote)
	logger.Info("Connected to PostgreSQL", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func toNumeric(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Load reads the three record tables of scope concurrently.
func (s *Store) Load(ctx context.Context, scope ledger.Scope) (ledger.State, error) {
	st := ledger.NewState()
	var cats core.Categories

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.loadTransactions(gctx, scope)
		st.Transactions = txs
		return err
	})
	g.Go(func() error {
		goals, err := s.loadGoals(gctx, scope)
		st.Goals = goals
		return err
	})
	g.Go(func() error {
		c, err := s.loadCategories(gctx, scope)
		cats = c
		return err
	})
	if err := g.Wait(); err != nil {
		return ledger.State{}, err
	}
	for t, list := range cats {
		st.Categories[t] = list
	}
	return st, nil
}

func (s *Store) loadTransactions(ctx context.Context, scope ledger.Scope) ([]core.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, amount, category, note, date, type, currency, exclude_from_balance
		FROM transactions
		WHERE user_id = $1 AND profile_id = $2
		ORDER BY date DESC, created_at DESC`, scope.UserID, scope.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var (
			tx     core.Transaction
			amount decimal.Decimal
			date   time.Time
			typ    string
		)
		if err := rows.Scan(&tx.ID, &amount, &tx.Category, &tx.Note, &date, &typ, &tx.Currency, &tx.ExcludeFromBalance); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Amount = amount.InexactFloat64()
		tx.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
		tx.Type = core.TransactionType(typ)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) loadGoals(ctx context.Context, scope ledger.Scope) ([]core.Goal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, target_amount, saved_amount, created_at
		FROM goals
		WHERE user_id = $1 AND profile_id = $2
		ORDER BY created_at`, scope.UserID, scope.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	goals := []core.Goal{}
	for rows.Next() {
		var (
			g             core.Goal
			target, saved decimal.Decimal
		)
		if err := rows.Scan(&g.ID, &g.Name, &target, &saved, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.TargetAmount = target.InexactFloat64()
		g.SavedAmount = saved.InexactFloat64()
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// loadCategories returns only the types that have stored rows.
func (s *Store) loadCategories(ctx context.Context, scope ledger.Scope) (core.Categories, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type, name
		FROM categories
		WHERE user_id = $1 AND profile_id = $2
		ORDER BY type, position`, scope.UserID, scope.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	cats := core.Categories{}
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		t := core.TransactionType(typ)
		cats[t] = append(cats[t], name)
	}
	return cats, rows.Err()
}

// Commit turns the action into row operations inside one transaction.
func (s *Store) Commit(ctx context.Context, scope ledger.Scope, change ledger.Change) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return applyChange(ctx, tx, scope, change)
	})
}

func applyChange(ctx context.Context, tx pgx.Tx, scope ledger.Scope, change ledger.Change) error {
	switch a := change.Action.(type) {
	case ledger.AddTransaction:
		t, ok := change.After.Transaction(a.Transaction.ID)
		if !ok {
			return fmt.Errorf("transaction %s missing from new state", a.Transaction.ID)
		}
		return insertTransaction(ctx, tx, scope, t)
	case ledger.UpdateTransaction:
		t, ok := change.After.Transaction(a.Transaction.ID)
		if !ok {
			return fmt.Errorf("transaction %s missing from new state", a.Transaction.ID)
		}
		return updateTransaction(ctx, tx, scope, t)
	case ledger.DeleteTransaction:
		return execOne(ctx, tx, `DELETE FROM transactions WHERE user_id = $1 AND profile_id = $2 AND id = $3`,
			scope.UserID, scope.ProfileID, a.ID)
	case ledger.AddGoal:
		g, ok := change.After.Goal(a.Goal.ID)
		if !ok {
			return fmt.Errorf("goal %s missing from new state", a.Goal.ID)
		}
		return insertGoal(ctx, tx, scope, g)
	case ledger.UpdateGoal, ledger.DepositGoal:
		g, ok := change.After.Goal(a.EntityID())
		if !ok {
			return fmt.Errorf("goal %s missing from new state", a.EntityID())
		}
		return execOne(ctx, tx, `
			UPDATE goals SET name = $4, target_amount = $5, saved_amount = $6
			WHERE user_id = $1 AND profile_id = $2 AND id = $3`,
			scope.UserID, scope.ProfileID, g.ID, g.Name, toNumeric(g.TargetAmount), toNumeric(g.SavedAmount))
	case ledger.DeleteGoal:
		return execOne(ctx, tx, `DELETE FROM goals WHERE user_id = $1 AND profile_id = $2 AND id = $3`,
			scope.UserID, scope.ProfileID, a.ID)
	case ledger.AddCategory:
		return replaceCategories(ctx, tx, scope, a.Type, change.After.Categories[a.Type])
	case ledger.RemoveCategory:
		return replaceCategories(ctx, tx, scope, a.Type, change.After.Categories[a.Type])
	case ledger.ClearAll, ledger.ImportSnapshot:
		return replaceAll(ctx, tx, scope, change.After)
	default:
		return fmt.Errorf("%w: %T", ledger.ErrUnknownAction, change.Action)
	}
}

var errNoRows = errors.New("no row affected")

func execOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNoRows
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, scope ledger.Scope, t core.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (user_id, profile_id, id, amount, category, note, date, type, currency, exclude_from_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		scope.UserID, scope.ProfileID, t.ID, toNumeric(t.Amount), t.Category, t.Note,
		t.Date.Time, string(t.Type), t.Currency, t.ExcludeFromBalance)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func updateTransaction(ctx context.Context, tx pgx.Tx, scope ledger.Scope, t core.Transaction) error {
	err := execOne(ctx, tx, `
		UPDATE transactions
		SET amount = $4, category = $5, note = $6, date = $7, type = $8, currency = $9, exclude_from_balance = $10
		WHERE user_id = $1 AND profile_id = $2 AND id = $3`,
		scope.UserID, scope.ProfileID, t.ID, toNumeric(t.Amount), t.Category, t.Note,
		t.Date.Time, string(t.Type), t.Currency, t.ExcludeFromBalance)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func insertGoal(ctx context.Context, tx pgx.Tx, scope ledger.Scope, g core.Goal) error {
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO goals (user_id, profile_id, id, name, target_amount, saved_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scope.UserID, scope.ProfileID, g.ID, g.Name, toNumeric(g.TargetAmount), toNumeric(g.SavedAmount), createdAt)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func replaceCategories(ctx context.Context, tx pgx.Tx, scope ledger.Scope, t core.TransactionType, names []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE user_id = $1 AND profile_id = $2 AND type = $3`,
		scope.UserID, scope.ProfileID, string(t)); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	batch := &pgx.Batch{}
	for i, name := range names {
		batch.Queue(`INSERT INTO categories (user_id, profile_id, type, name, position) VALUES ($1, $2, $3, $4, $5)`,
			scope.UserID, scope.ProfileID, string(t), name, i)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert categories: %w", err)
	}
	return nil
}

// replaceAll rewrites every record of scope from st.
func replaceAll(ctx context.Context, tx pgx.Tx, scope ledger.Scope, st ledger.State) error {
	for _, table := range []string{"transactions", "goals"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1 AND profile_id = $2`,
			scope.UserID, scope.ProfileID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, t := range st.Transactions {
		if err := insertTransaction(ctx, tx, scope, t); err != nil {
			return err
		}
	}
	for _, g := range st.Goals {
		if err := insertGoal(ctx, tx, scope, g); err != nil {
			return err
		}
	}
	for _, t := range core.Types() {
		if err := replaceCategories(ctx, tx, scope, t, st.Categories[t]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Profiles(ctx context.Context, userID string) ([]core.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at FROM profiles WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []core.Profile
	for rows.Next() {
		var p core.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Store) SaveProfile(ctx context.Context, userID string, p core.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, id, name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, id) DO UPDATE SET name = EXCLUDED.name`,
		userID, p.ID, p.Name, createdAt)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID, profileID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"transactions", "goals", "categories"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1 AND profile_id = $2`, userID, profileID); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1 AND id = $2`, userID, profileID); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return nil
	})
}

func (s *Store) Settings(ctx context.Context, userID string) (core.Settings, bool, error) {
	var st core.Settings
	err := s.pool.QueryRow(ctx, `
		SELECT currency, language, theme, active_profile FROM settings WHERE user_id = $1`, userID).
		Scan(&st.Currency, &st.Language, &st.Theme, &st.ActiveProfile)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Settings{}, false, nil
	}
	if err != nil {
		return core.Settings{}, false, fmt.Errorf("query settings: %w", err)
	}
	return st, true, nil
}

func (s *Store) SaveSettings(ctx context.Context, userID string, st core.Settings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (user_id, currency, language, theme, active_profile, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE SET
			currency = EXCLUDED.currency,
			language = EXCLUDED.language,
			theme = EXCLUDED.theme,
			active_profile = EXCLUDED.active_profile,
			updated_at = now()`,
		userID, st.Currency, st.Language, st.Theme, st.ActiveProfile)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
