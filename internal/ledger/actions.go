package ledger

import "hisab/internal/core"

// Action is a state transition request. Kind and EntityID describe it in
// change events and logs.
type Action interface {
	Kind() string
	EntityID() string
}

type (
	AddTransaction struct {
		Transaction core.Transaction
	}

	// UpdateTransaction replaces the transaction with the same ID wholesale.
	UpdateTransaction struct {
		Transaction core.Transaction
	}

	DeleteTransaction struct {
		ID string
	}

	AddGoal struct {
		Goal core.Goal
	}

	// UpdateGoal renames and retargets a goal; the saved amount is kept.
	UpdateGoal struct {
		ID           string
		Name         string
		TargetAmount float64
	}

	DepositGoal struct {
		ID     string
		Amount float64
	}

	DeleteGoal struct {
		ID string
	}

	AddCategory struct {
		Type core.TransactionType
		Name string
	}

	RemoveCategory struct {
		Type core.TransactionType
		Name string
	}

	// ClearAll drops every transaction and goal and restores default categories.
	ClearAll struct{}

	// ImportSnapshot replaces the whole state, as when restoring a backup.
	ImportSnapshot struct {
		State State
	}
)

func (a AddTransaction) Kind() string        { return "transaction.added" }
func (a AddTransaction) EntityID() string    { return a.Transaction.ID }
func (a UpdateTransaction) Kind() string     { return "transaction.updated" }
func (a UpdateTransaction) EntityID() string { return a.Transaction.ID }
func (a DeleteTransaction) Kind() string     { return "transaction.deleted" }
func (a DeleteTransaction) EntityID() string { return a.ID }
func (a AddGoal) Kind() string               { return "goal.added" }
func (a AddGoal) EntityID() string           { return a.Goal.ID }
func (a UpdateGoal) Kind() string            { return "goal.updated" }
func (a UpdateGoal) EntityID() string        { return a.ID }
func (a DepositGoal) Kind() string           { return "goal.deposited" }
func (a DepositGoal) EntityID() string       { return a.ID }
func (a DeleteGoal) Kind() string            { return "goal.deleted" }
func (a DeleteGoal) EntityID() string        { return a.ID }
func (a AddCategory) Kind() string           { return "category.added" }
func (a AddCategory) EntityID() string       { return string(a.Type) + ":" + a.Name }
func (a RemoveCategory) Kind() string        { return "category.removed" }
func (a RemoveCategory) EntityID() string    { return string(a.Type) + ":" + a.Name }
func (ClearAll) Kind() string                { return "profile.cleared" }
func (ClearAll) EntityID() string            { return "" }
func (ImportSnapshot) Kind() string          { return "profile.imported" }
func (ImportSnapshot) EntityID() string      { return "" }

// Change is a committed transition handed to the store for persistence.
type Change struct {
	Action Action
	Before State
	After  State
}
