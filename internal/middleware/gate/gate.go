// Package gate puts an optional shared password in front of the API.
package gate

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"hisab/internal/log"
)

// PasswordHeader carries the app password on every gated request.
const PasswordHeader = "X-App-Password"

var ErrWrongPassword = errors.New("wrong password")

// Gate checks passwords against a bcrypt hash. A Gate without a hash lets
// everything through.
type Gate struct {
	hash   []byte
	exempt map[string]bool
	logger *log.Logger
}

// New validates hash up front so a malformed APP_PASSWORD_HASH fails at
// startup instead of on every request.
func New(hash string, logger *log.Logger, exemptPaths ...string) (*Gate, error) {
	if logger == nil {
		logger = log.NewDiscard()
	}
	g := &Gate{exempt: map[string]bool{}, logger: logger.WithComponent(log.ComponentGate)}
	for _, p := range exemptPaths {
		g.exempt[p] = true
	}
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return g, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	g.hash = []byte(hash)
	return g, nil
}

func (g *Gate) Enabled() bool {
	return len(g.hash) > 0
}

// Check compares password with the configured hash.
func (g *Gate) Check(password string) error {
	if !g.Enabled() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// Middleware guards every /api/ path except the exempt ones. onDenied writes
// the 401 response.
func (g *Gate) Middleware(onDenied func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !g.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || g.exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if err := g.Check(r.Header.Get(PasswordHeader)); err != nil {
				g.logger.WarnContext(r.Context(), "Rejected request without valid app password",
					log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", "").ToSlice()...)
				onDenied(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashPassword returns a bcrypt hash suitable for APP_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
