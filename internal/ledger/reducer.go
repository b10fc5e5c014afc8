package ledger

import (
	"fmt"
	"strings"

	"hisab/internal/core"
)

// Reduce applies a to s and returns the next state. s is never modified;
// every slice that changes is copied first.
func Reduce(s State, a Action) (State, error) {
	switch a := a.(type) {
	case AddTransaction:
		return addTransaction(s, a.Transaction)
	case UpdateTransaction:
		return updateTransaction(s, a.Transaction)
	case DeleteTransaction:
		return deleteTransaction(s, a.ID)
	case AddGoal:
		return addGoal(s, a.Goal)
	case UpdateGoal:
		return updateGoal(s, a)
	case DepositGoal:
		return depositGoal(s, a)
	case DeleteGoal:
		return deleteGoal(s, a.ID)
	case AddCategory:
		return addCategory(s, a.Type, a.Name)
	case RemoveCategory:
		return removeCategory(s, a.Type, a.Name)
	case ClearAll:
		return NewState(), nil
	case ImportSnapshot:
		return importSnapshot(a.State)
	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

func addTransaction(s State, tx core.Transaction) (State, error) {
	tx = tx.Normalized()
	if tx.ID == "" {
		return s, fmt.Errorf("transaction: %w", ErrEmptyID)
	}
	if err := tx.Validate(); err != nil {
		return s, err
	}
	if _, ok := s.Transaction(tx.ID); ok {
		return s, fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicateID)
	}
	next := s
	next.Transactions = make([]core.Transaction, 0, len(s.Transactions)+1)
	next.Transactions = append(next.Transactions, tx)
	next.Transactions = append(next.Transactions, s.Transactions...)
	return next, nil
}

func updateTransaction(s State, tx core.Transaction) (State, error) {
	tx = tx.Normalized()
	if err := tx.Validate(); err != nil {
		return s, err
	}
	idx := indexOfTransaction(s.Transactions, tx.ID)
	if idx < 0 {
		return s, fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	next := s
	next.Transactions = append([]core.Transaction{}, s.Transactions...)
	next.Transactions[idx] = tx
	return next, nil
}

func deleteTransaction(s State, id string) (State, error) {
	idx := indexOfTransaction(s.Transactions, id)
	if idx < 0 {
		return s, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	next := s
	next.Transactions = make([]core.Transaction, 0, len(s.Transactions)-1)
	next.Transactions = append(next.Transactions, s.Transactions[:idx]...)
	next.Transactions = append(next.Transactions, s.Transactions[idx+1:]...)
	return next, nil
}

func addGoal(s State, g core.Goal) (State, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.ID == "" {
		return s, fmt.Errorf("goal: %w", ErrEmptyID)
	}
	if err := g.Validate(); err != nil {
		return s, err
	}
	if _, ok := s.Goal(g.ID); ok {
		return s, fmt.Errorf("goal %s: %w", g.ID, ErrDuplicateID)
	}
	next := s
	next.Goals = make([]core.Goal, 0, len(s.Goals)+1)
	next.Goals = append(next.Goals, s.Goals...)
	next.Goals = append(next.Goals, g)
	return next, nil
}

func updateGoal(s State, a UpdateGoal) (State, error) {
	idx := indexOfGoal(s.Goals, a.ID)
	if idx < 0 {
		return s, fmt.Errorf("goal %s: %w", a.ID, ErrNotFound)
	}
	g := s.Goals[idx]
	g.Name = strings.TrimSpace(a.Name)
	g.TargetAmount = a.TargetAmount
	if err := g.Validate(); err != nil {
		return s, err
	}
	next := s
	next.Goals = append([]core.Goal{}, s.Goals...)
	next.Goals[idx] = g
	return next, nil
}

func depositGoal(s State, a DepositGoal) (State, error) {
	if !core.ValidAmount(a.Amount) {
		return s, core.ErrInvalidAmount
	}
	idx := indexOfGoal(s.Goals, a.ID)
	if idx < 0 {
		return s, fmt.Errorf("goal %s: %w", a.ID, ErrNotFound)
	}
	if s.Goals[idx].SavedAmount+a.Amount >= core.MaxAmount {
		return s, core.ErrInvalidAmount
	}
	next := s
	next.Goals = append([]core.Goal{}, s.Goals...)
	next.Goals[idx].SavedAmount += a.Amount
	return next, nil
}

func deleteGoal(s State, id string) (State, error) {
	idx := indexOfGoal(s.Goals, id)
	if idx < 0 {
		return s, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	next := s
	next.Goals = make([]core.Goal, 0, len(s.Goals)-1)
	next.Goals = append(next.Goals, s.Goals[:idx]...)
	next.Goals = append(next.Goals, s.Goals[idx+1:]...)
	return next, nil
}

func addCategory(s State, t core.TransactionType, name string) (State, error) {
	if !t.Valid() {
		return s, core.ErrInvalidType
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s, core.ErrEmptyCategory
	}
	if s.Categories.Contains(t, name) {
		return s, fmt.Errorf("%s %q: %w", t, name, ErrCategoryExists)
	}
	next := s
	next.Categories = s.Categories.Clone()
	next.Categories[t] = append(next.Categories[t], name)
	return next, nil
}

func removeCategory(s State, t core.TransactionType, name string) (State, error) {
	if !t.Valid() {
		return s, core.ErrInvalidType
	}
	name = strings.TrimSpace(name)
	if !s.Categories.Contains(t, name) {
		return s, fmt.Errorf("%s %q: %w", t, name, ErrCategoryNotFound)
	}
	next := s
	next.Categories = s.Categories.Clone()
	list := make([]string, 0, len(s.Categories[t]))
	for _, v := range s.Categories[t] {
		if v != name {
			list = append(list, v)
		}
	}
	next.Categories[t] = list
	return next, nil
}

func importSnapshot(in State) (State, error) {
	next := in.Clone()
	for i := range next.Transactions {
		next.Transactions[i] = next.Transactions[i].Normalized()
	}
	if err := next.Validate(); err != nil {
		return State{}, err
	}
	// Missing lists fall back to defaults; present lists are kept as given.
	defaults := core.DefaultCategories()
	if next.Categories == nil {
		next.Categories = core.Categories{}
	}
	for _, t := range core.Types() {
		if list, ok := next.Categories[t]; ok {
			next.Categories[t] = core.Dedupe(list)
		} else {
			next.Categories[t] = defaults[t]
		}
	}
	return next, nil
}

func indexOfTransaction(txs []core.Transaction, id string) int {
	for i, tx := range txs {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

func indexOfGoal(goals []core.Goal, id string) int {
	for i, g := range goals {
		if g.ID == id {
			return i
		}
	}
	return -1
}
