package http

import (
	"errors"
	"net/http"
	"strings"

	"hisab/internal/cache"
	"hisab/internal/calc"
	"hisab/internal/core"
	"hisab/internal/currency"
	"hisab/internal/middleware/ratelimit"
	"hisab/internal/middleware/trace"
)

var errUnknownCurrency = errors.New("unknown currency")

const maxCalculatorKeys = 256

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.gate.Check(req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": true, "gated": s.gate.Enabled()})
}

type metricsResponse struct {
	Sessions  cache.Stats       `json:"sessions"`
	RateLimit ratelimit.Metrics `json:"rateLimit"`
	Requests  trace.Metrics     `json:"requests"`
	Probes    int64             `json:"probesRejected"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		Sessions:  s.ledger.SessionStats(),
		RateLimit: s.limiter.GetMetrics(),
		Requests:  s.tracer.GetMetrics(),
		Probes:    s.detector.Probes(),
	})
}

func (s *Server) handleCurrencies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Base       string          `json:"base"`
		Currencies []currency.Info `json:"currencies"`
	}{currency.BaseCurrency, s.rates.List()})
}

// knownCurrency normalises code and checks the rate table has it.
func (s *Server) knownCurrency(code string) (string, error) {
	c := core.NormalizeCurrency(code)
	if !core.ValidCurrencyCode(c) {
		return "", core.ErrInvalidCurrency
	}
	if !s.rates.Known(c) {
		return "", errUnknownCurrency
	}
	return c, nil
}

// handleConvert converts between any two well-formed codes. Codes missing
// from the rate table convert at 1.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := core.ParseMagnitude(q.Get("amount"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	from := core.NormalizeCurrency(q.Get("from"))
	to := core.NormalizeCurrency(q.Get("to"))
	if !core.ValidCurrencyCode(from) || !core.ValidCurrencyCode(to) {
		writeError(w, r, core.ErrInvalidCurrency)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount": amount,
		"from":   from,
		"to":     to,
		"result": s.rates.Convert(amount, from, to),
	})
}

// handleCalculator evaluates an expression, or replays keypad presses when
// keys is given and returns what the display shows.
func (s *Server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Expression string   `json:"expression"`
		Keys       []string `json:"keys"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Keys != nil {
		if len(req.Keys) > maxCalculatorKeys {
			writeError(w, r, badRequest("too many keys"))
			return
		}
		d := calc.NewDisplay()
		for _, k := range req.Keys {
			d.Press(k)
		}
		writeJSON(w, http.StatusOK, map[string]any{"display": d.String(), "error": d.String() == calc.ErrorText})
		return
	}
	v, err := calc.Evaluate(req.Expression)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, _ := v.Float64()
	writeJSON(w, http.StatusOK, map[string]any{"result": v.String(), "value": f})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.ledger.Settings(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings merges the provided fields into the current settings.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Currency      *string `json:"currency"`
		Language      *string `json:"language"`
		Theme         *string `json:"theme"`
		ActiveProfile *string `json:"activeProfile"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.ledger.Settings(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Currency != nil {
		if settings.Currency, err = s.knownCurrency(*req.Currency); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Language != nil {
		settings.Language = strings.TrimSpace(*req.Language)
	}
	if req.Theme != nil {
		settings.Theme = strings.TrimSpace(*req.Theme)
	}
	if req.ActiveProfile != nil {
		settings.ActiveProfile = strings.TrimSpace(*req.ActiveProfile)
	}
	updated, err := s.ledger.UpdateSettings(r.Context(), id.UserID, settings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type profileView struct {
	core.Profile
	Active bool `json:"active"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	profiles, err := s.ledger.Profiles(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.ledger.Settings(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, profileView{Profile: p, Active: p.ID == settings.ActiveProfile})
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.ledger.CreateProfile(r.Context(), id.UserID, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRenameProfile(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.ledger.RenameProfile(r.Context(), id.UserID, r.PathValue("id"), sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteProfile(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.ledger.ActivateProfile(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
