package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/slaurent/cliniquerdv/libs/auth"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/authn"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

const sessionTTL = 12 * time.Hour

// AuthStore resolves login credentials.
type AuthStore interface {
	AccountByEmail(ctx context.Context, email string) (model.Account, error)
}

type AuthHandler struct {
	store  AuthStore
	secret string
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthHandler(store AuthStore, secret string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: store, secret: secret, logger: logger, now: time.Now}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountItem struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

func accountToItem(a model.Account) accountItem {
	return accountItem{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone, Role: a.Role}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "MissingFields", "email and password are required")
		return
	}

	account, err := h.store.AccountByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "login lookup failed", "err", err)
		}
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "invalid email or password")
		return
	}
	if account.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "invalid email or password")
		return
	}

	now := h.now()
	token, err := auth.SignSession(auth.SessionClaims{
		AccountID: account.ID,
		Role:      account.Role,
		Iat:       now.Unix(),
		Exp:       now.Add(sessionTTL).Unix(),
	}, h.secret)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "session signing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authn.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, envelope{"success": true, "account": accountToItem(account)})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authn.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, envelope{"success": true})
}

// Me returns the authenticated account. It sits behind the session
// middleware, so the account is always present.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := authn.CurrentAccount(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "account": accountToItem(account)})
}
