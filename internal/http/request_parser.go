// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// caller identity, list filters and JSON bodies.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hisab/internal/core"
)

const (
	UserIDHeader    = "X-User-ID"
	ProfileIDHeader = "X-Profile-ID"

	maxIdentifierLen = 128
	maxBodyBytes     = 5 << 20
)

// errBadRequest marks malformed input; handlers answer it with 400.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Identity is who a request acts for. ProfileHint is empty when the caller
// wants the active profile.
type Identity struct {
	UserID      string
	ProfileHint string
}

// ParseIdentity reads the user from X-User-ID and the profile from
// X-Profile-ID or the "profile" query parameter.
func ParseIdentity(r *http.Request) (Identity, error) {
	user, err := identifier(r.Header.Get(UserIDHeader), "user id")
	if err != nil {
		return Identity{}, err
	}
	if user == "" {
		user = core.GuestUserID
	}
	hint := r.Header.Get(ProfileIDHeader)
	if strings.TrimSpace(hint) == "" {
		hint = r.URL.Query().Get("profile")
	}
	profile, err := identifier(hint, "profile id")
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: user, ProfileHint: profile}, nil
}

func identifier(raw, what string) (string, error) {
	v := sanitizeInput(raw)
	if len(v) > maxIdentifierLen {
		return "", badRequest("%s too long", what)
	}
	if strings.ContainsAny(v, "/\\") {
		return "", badRequest("%s contains a path separator", what)
	}
	return v, nil
}

// HistoryFilter narrows the transaction history. Zero values mean "any".
type HistoryFilter struct {
	Type  core.TransactionType
	Year  int
	Month int
}

// ParseHistoryFilter reads type, year and month. A month needs a year.
func ParseHistoryFilter(query url.Values) (HistoryFilter, error) {
	var f HistoryFilter
	if v := strings.TrimSpace(query.Get("type")); v != "" {
		t, err := core.ParseTransactionType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return f, badRequest("invalid year %q", v)
		}
		f.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return f, badRequest("invalid month %q", v)
		}
		if f.Year == 0 {
			return f, badRequest("month filter requires a year")
		}
		f.Month = m
	}
	return f, nil
}

// decodeJSON reads one JSON value from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("empty body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("malformed JSON: %v", err)
	}
	return nil
}

// AmountField accepts a JSON number or a string such as "1,234.50" or
// "12,5". Parsing is deferred so an unparseable amount is a validation
// error rather than a malformed body.
type AmountField struct {
	raw string
	set bool
}

func (a *AmountField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = AmountField{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = AmountField{raw: s, set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = AmountField{raw: n.String(), set: true}
	return nil
}

// Set reports whether the field was present.
func (a AmountField) Set() bool {
	return a.set
}

// Value parses the amount; it must be positive.
func (a AmountField) Value() (float64, error) {
	if !a.set {
		return 0, core.ErrInvalidAmount
	}
	return core.ParseAmount(a.raw)
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
