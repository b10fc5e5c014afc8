package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/log"
)

const keyPrefix = "hisab_"

// Keys for one scope. The default profile keeps the un-suffixed keys written
// before profiles existed. Ids are path-escaped so the "/" between user and
// profile cannot occur inside either.
func scopeSuffix(scope ledger.Scope) string {
	if scope.ProfileID == core.DefaultProfileID {
		return url.PathEscape(scope.UserID)
	}
	return url.PathEscape(scope.UserID) + "/" + url.PathEscape(scope.ProfileID)
}

func transactionsKey(scope ledger.Scope) string {
	return keyPrefix + "transactions_" + scopeSuffix(scope)
}

func goalsKey(scope ledger.Scope) string {
	return keyPrefix + "goals_" + scopeSuffix(scope)
}

func categoriesKey(t core.TransactionType, scope ledger.Scope) string {
	return keyPrefix + "categories_" + string(t) + "_" + scopeSuffix(scope)
}

func profilesKey(userID string) string {
	return keyPrefix + "profiles_" + url.PathEscape(userID)
}

func settingsKey(userID string) string {
	return keyPrefix + "settings_" + url.PathEscape(userID)
}

// LocalStore implements ledger.Store on top of KV.
type LocalStore struct {
	kv     *KV
	logger *log.Logger
}

var _ ledger.Store = (*LocalStore)(nil)

// NewLocalStore opens the SQLite database at dbPath.
func NewLocalStore(dbPath string, logger *log.Logger) (*LocalStore, error) {
	kv, err := OpenKV(dbPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewDiscard()
	}
	return &LocalStore{kv: kv, logger: logger.WithComponent(log.ComponentStorage)}, nil
}

func (s *LocalStore) Close() error {
	return s.kv.Close()
}

func (s *LocalStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// readJSON decodes key into v. Missing keys report found=false; undecodable
// values are logged and treated as missing so one bad document never locks
// the user out.
func (s *LocalStore) readJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.WarnContext(ctx, "Ignoring undecodable stored value",
			log.NewFields().WithOperation(log.OpLoad).WithError(err).ToSlice()...)
		return false, nil
	}
	return true, nil
}

func setJSON(tx *KVTx, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, string(b))
}

func (s *LocalStore) Load(ctx context.Context, scope ledger.Scope) (ledger.State, error) {
	st := ledger.NewState()

	var txs []core.Transaction
	if _, err := s.readJSON(ctx, transactionsKey(scope), &txs); err != nil {
		return ledger.State{}, err
	}
	for _, tx := range txs {
		// Records without an id cannot be edited or deleted; drop them.
		if tx.ID != "" {
			st.Transactions = append(st.Transactions, tx)
		}
	}

	var goals []core.Goal
	if _, err := s.readJSON(ctx, goalsKey(scope), &goals); err != nil {
		return ledger.State{}, err
	}
	for _, g := range goals {
		if g.ID != "" {
			st.Goals = append(st.Goals, g)
		}
	}

	for _, t := range core.Types() {
		var list []string
		found, err := s.readJSON(ctx, categoriesKey(t, scope), &list)
		if err != nil {
			return ledger.State{}, err
		}
		if found {
			st.Categories[t] = core.Dedupe(list)
		}
	}
	return st, nil
}

// Commit rewrites every document of the scope in one SQL transaction.
func (s *LocalStore) Commit(ctx context.Context, scope ledger.Scope, change ledger.Change) error {
	after := change.After
	return s.kv.Update(ctx, func(tx *KVTx) error {
		if err := setJSON(tx, transactionsKey(scope), nonNil(after.Transactions)); err != nil {
			return err
		}
		if err := setJSON(tx, goalsKey(scope), nonNil(after.Goals)); err != nil {
			return err
		}
		for _, t := range core.Types() {
			if err := setJSON(tx, categoriesKey(t, scope), nonNil(after.Categories[t])); err != nil {
				return err
			}
		}
		return nil
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *LocalStore) Profiles(ctx context.Context, userID string) ([]core.Profile, error) {
	var profiles []core.Profile
	if _, err := s.readJSON(ctx, profilesKey(userID), &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *LocalStore) SaveProfile(ctx context.Context, userID string, p core.Profile) error {
	profiles, err := s.Profiles(ctx, userID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range profiles {
		if profiles[i].ID == p.ID {
			profiles[i] = p
			replaced = true
		}
	}
	if !replaced {
		profiles = append(profiles, p)
	}
	return s.kv.Update(ctx, func(tx *KVTx) error {
		return setJSON(tx, profilesKey(userID), profiles)
	})
}

func (s *LocalStore) DeleteProfile(ctx context.Context, userID, profileID string) error {
	profiles, err := s.Profiles(ctx, userID)
	if err != nil {
		return err
	}
	kept := make([]core.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID != profileID {
			kept = append(kept, p)
		}
	}
	scope := ledger.Scope{UserID: userID, ProfileID: profileID}
	return s.kv.Update(ctx, func(tx *KVTx) error {
		if err := setJSON(tx, profilesKey(userID), kept); err != nil {
			return err
		}
		keys := []string{transactionsKey(scope), goalsKey(scope)}
		for _, t := range core.Types() {
			keys = append(keys, categoriesKey(t, scope))
		}
		for _, k := range keys {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *LocalStore) Settings(ctx context.Context, userID string) (core.Settings, bool, error) {
	var settings core.Settings
	found, err := s.readJSON(ctx, settingsKey(userID), &settings)
	if err != nil {
		return core.Settings{}, false, err
	}
	return settings, found, nil
}

func (s *LocalStore) SaveSettings(ctx context.Context, userID string, settings core.Settings) error {
	return s.kv.Update(ctx, func(tx *KVTx) error {
		return setJSON(tx, settingsKey(userID), settings)
	})
}
