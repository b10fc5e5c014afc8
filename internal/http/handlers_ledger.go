package http

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/stats"
)

var errEmptyState = errors.New("backup holds no data")

type transactionRequest struct {
	Amount             AmountField `json:"amount"`
	Category           string      `json:"category"`
	Note               string      `json:"note"`
	Date               string      `json:"date"`
	Type               string      `json:"type"`
	Currency           string      `json:"currency"`
	ExcludeFromBalance bool        `json:"excludeFromBalance"`
}

// toTransaction builds a record from the request. Blank dates default to
// today and blank currencies to the user's display currency.
func (req transactionRequest) toTransaction(id string, today core.Date, defaultCurrency string) (core.Transaction, error) {
	amount, err := req.Amount.Value()
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	date := today
	if strings.TrimSpace(req.Date) != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			return core.Transaction{}, err
		}
	}
	cur := core.NormalizeCurrency(req.Currency)
	if cur == "" {
		cur = defaultCurrency
	}
	tx := core.Transaction{
		ID:                 id,
		Amount:             amount,
		Category:           sanitizeInput(req.Category),
		Note:               sanitizeInput(req.Note),
		Date:               date,
		Type:               t,
		Currency:           cur,
		ExcludeFromBalance: t == core.Savings && req.ExcludeFromBalance,
	}
	return tx, tx.Validate()
}

func (s *Server) today() core.Date {
	now := s.now().UTC()
	return core.NewDate(now.Year(), int(now.Month()), now.Day())
}

// dispatch applies one action to scope.
func (s *Server) dispatch(r *http.Request, scope ledger.Scope, a ledger.Action) (ledger.State, error) {
	return s.ledger.Dispatch(r.Context(), scope, a)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := ParseHistoryFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ledger.Snapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs := st.Transactions
	if filter.Type != "" {
		txs = stats.FilterType(txs, filter.Type)
	}
	if filter.Year != 0 {
		txs = filterYear(txs, filter.Year, filter.Month)
	}
	txs = stats.SortNewestFirst(txs)
	writeJSON(w, http.StatusOK, map[string]any{"transactions": nonNil(txs), "count": len(txs)})
}

func filterYear(txs []core.Transaction, year, month int) []core.Transaction {
	if month != 0 {
		return stats.FilterMonth(txs, year, month)
	}
	var out []core.Transaction
	for _, tx := range txs {
		if tx.Date.Year() == year {
			out = append(out, tx)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.ledger.Settings(r.Context(), scope.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := req.toTransaction(core.NewID(), s.today(), settings.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.dispatch(r, scope, ledger.AddTransaction{Transaction: tx}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// handleUpdateTransaction replaces a record. Omitted date and currency keep
// the stored values.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ledger.Snapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, ok := st.Transaction(r.PathValue("id"))
	if !ok {
		writeError(w, r, ledger.ErrNotFound)
		return
	}
	tx, err := req.toTransaction(existing.ID, existing.Date, existing.CurrencyOrFallback())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.dispatch(r, scope, ledger.UpdateTransaction{Transaction: tx}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.dispatch(r, scope, ledger.DeleteTransaction{ID: r.PathValue("id")}); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, cur, err := s.ledger.Stats(r.Context(), scope, r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		core.DashboardStats
		Currency string `json:"currency"`
		Symbol   string `json:"symbol"`
	}{totals, cur, s.rates.Symbol(cur)})
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := core.ParseTransactionType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	breakdown, cur, err := s.ledger.Breakdown(r.Context(), scope, t, r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":       t,
		"currency":   cur,
		"categories": nonNil(breakdown),
	})
}

const maxQuestionLength = 500

// handleInsight answers with a tip computed from the scope's figures and an
// optional question.
func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("question"))
	if utf8.RuneCountInString(question) > maxQuestionLength {
		writeError(w, r, badRequest("question longer than %d characters", maxQuestionLength))
		return
	}
	insight, cur, err := s.ledger.Insight(r.Context(), scope, q.Get("currency"), question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		stats.Insight
		Currency string `json:"currency"`
	}{insight, cur})
}

type goalView struct {
	core.Goal
	Progress stats.Progress `json:"progress"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ledger.Snapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]goalView, 0, len(st.Goals))
	for _, g := range st.Goals {
		out = append(out, goalView{Goal: g, Progress: stats.GoalProgress(g)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": out})
}

type goalRequest struct {
	Name         string      `json:"name"`
	TargetAmount AmountField `json:"targetAmount"`
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := req.TargetAmount.Value()
	if err != nil {
		writeError(w, r, err)
		return
	}
	g := core.Goal{
		ID:           core.NewID(),
		Name:         sanitizeInput(req.Name),
		TargetAmount: target,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.dispatch(r, scope, ledger.AddGoal{Goal: g}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goalView{Goal: g, Progress: stats.GoalProgress(g)})
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := req.TargetAmount.Value()
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	st, err := s.dispatch(r, scope, ledger.UpdateGoal{ID: id, Name: sanitizeInput(req.Name), TargetAmount: target})
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, _ := st.Goal(id)
	writeJSON(w, http.StatusOK, goalView{Goal: g, Progress: stats.GoalProgress(g)})
}

func (s *Server) handleDepositGoal(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Amount AmountField `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount.Value()
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	st, err := s.dispatch(r, scope, ledger.DepositGoal{ID: id, Amount: amount})
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, _ := st.Goal(id)
	writeJSON(w, http.StatusOK, goalView{Goal: g, Progress: stats.GoalProgress(g)})
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.dispatch(r, scope, ledger.DeleteGoal{ID: r.PathValue("id")}); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ledger.Snapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := map[core.TransactionType][]string{}
	for _, t := range core.Types() {
		out[t] = nonNil(st.Categories[t])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := core.ParseTransactionType(r.PathValue("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.dispatch(r, scope, ledger.AddCategory{Type: t, Name: sanitizeInput(req.Name)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"type": t, "categories": st.Categories[t]})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := core.ParseTransactionType(r.PathValue("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.dispatch(r, scope, ledger.RemoveCategory{Type: t, Name: r.PathValue("name")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": t, "categories": nonNil(st.Categories[t])})
}

// backupVersion tags the envelope produced by GET /api/backup.
const backupVersion = 1

type backup struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exportedAt"`
	ProfileID  string       `json:"profileId"`
	Data       ledger.State `json:"data"`
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ledger.Snapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st.Transactions = nonNil(st.Transactions)
	st.Goals = nonNil(st.Goals)
	filename := "hisab-backup-" + s.today().String() + ".json"
	NewJSONResponse().
		Header("Content-Disposition", `attachment; filename="`+filename+`"`).
		Body(backup{Version: backupVersion, ExportedAt: s.now().UTC(), ProfileID: scope.ProfileID, Data: st}).
		Write(w)
}

// handleRestore replaces the profile with a backup. It accepts either the
// backup envelope or a bare state object.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Version int           `json:"version"`
		Data    *ledger.State `json:"data"`
		ledger.State
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snapshot := req.State
	if req.Data != nil {
		snapshot = *req.Data
	}
	if snapshot.Transactions == nil && snapshot.Goals == nil && snapshot.Categories == nil {
		writeError(w, r, errEmptyState)
		return
	}
	st, err := s.dispatch(r, scope, ledger.ImportSnapshot{State: snapshot})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"transactions": len(st.Transactions),
		"goals":        len(st.Goals),
	})
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.dispatch(r, scope, ledger.ClearAll{}); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
