// Package authn authenticates staff requests from the session cookie.
package authn

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/slaurent/cliniquerdv/libs/auth"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

// CookieName is where the signed session token lives.
const CookieName = "session_token"

// AccountSource loads the account behind a verified session.
type AccountSource interface {
	AccountByID(ctx context.Context, id int64) (model.Account, error)
}

type contextKey struct{}

// Middleware verifies session cookies and attaches the account to the
// request context.
type Middleware struct {
	secret   string
	accounts AccountSource
	logger   *slog.Logger
}

func NewMiddleware(secret string, accounts AccountSource, logger *slog.Logger) *Middleware {
	return &Middleware{secret: secret, accounts: accounts, logger: logger}
}

// RequireRoles wraps a handler so only authenticated accounts with one of
// the given roles get through. With no roles listed, any authenticated
// account passes.
func (m *Middleware) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := m.authenticate(r)
			if !ok {
				unauthorized(w)
				return
			}
			if len(roles) > 0 && !hasRole(account.Role, roles) {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, account)))
		})
	}
}

func (m *Middleware) authenticate(r *http.Request) (model.Account, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return model.Account{}, false
	}
	claims, err := auth.VerifySession(cookie.Value, m.secret)
	if err != nil {
		return model.Account{}, false
	}
	account, err := m.accounts.AccountByID(r.Context(), claims.AccountID)
	if err != nil {
		m.logger.WarnContext(r.Context(), "session account lookup failed", "account_id", claims.AccountID, "err", err)
		return model.Account{}, false
	}
	if !account.IsActive {
		return model.Account{}, false
	}
	return account, true
}

// CurrentAccount returns the authenticated account stored by RequireRoles.
func CurrentAccount(ctx context.Context) (model.Account, bool) {
	account, ok := ctx.Value(contextKey{}).(model.Account)
	return account, ok
}

func hasRole(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"Unauthorized","message":"authentication required"}}`))
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"Forbidden","message":"insufficient role"}}`))
}
