// Package accounts implements the supplemented register/login/logout
// surface: a persistent identity a client can bind to its otherwise
// anonymous chat session cookie.
package accounts

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/NuvandaPV/instant/internal/identity"
	"github.com/NuvandaPV/instant/internal/logging"
	"github.com/NuvandaPV/instant/internal/responses"
	"github.com/NuvandaPV/instant/internal/storage/postgres"
	"github.com/NuvandaPV/instant/internal/webutil"
)

// Service handles the three account endpoints over a Postgres-backed
// store, binding a successful login to the caller's sid session
// cookie rather than issuing a separate bearer token.
type Service struct {
	store        *postgres.Store
	codec        *identity.Codec
	cookieSecure bool
	logger       *logging.Logger
}

// NewService builds a Service.
func NewService(store *postgres.Store, codec *identity.Codec, cookieSecure bool, logger *logging.Logger) *Service {
	return &Service{store: store, codec: codec, cookieSecure: cookieSecure, logger: logger}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		webutil.HandleError(w, responses.BadRequestError{Msg: "invalid request body"})
		return
	}
	if len(creds.Username) < 3 || len(creds.Username) > 50 {
		webutil.HandleError(w, responses.BadRequestError{Msg: "username must be between 3 and 50 characters"})
		return
	}
	if len(creds.Password) < 8 || len(creds.Password) > 72 {
		webutil.HandleError(w, responses.BadRequestError{Msg: "password must be between 8 and 72 characters"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		webutil.HandleError(w, responses.InternalServerError{Msg: "failed to hash password"})
		return
	}

	if err := s.store.CreateAccount(r.Context(), creds.Username, string(hash)); err != nil {
		s.logger.Warnf("accounts: create %q: %v", creds.Username, err)
		webutil.HandleError(w, responses.BadRequestError{Msg: "username already taken"})
		return
	}

	webutil.HandleSuccess(w, map[string]string{"message": "account created"})
}

// Login verifies credentials and binds the resulting identity to a
// freshly-minted sid session cookie.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		webutil.HandleError(w, responses.BadRequestError{Msg: "invalid request body"})
		return
	}

	account, err := s.store.FindAccount(r.Context(), creds.Username)
	if err == postgres.ErrNotFound {
		webutil.HandleError(w, responses.UnauthorizedError{Msg: "invalid username or password"})
		return
	}
	if err != nil {
		s.logger.Errorf("accounts: lookup %q: %v", creds.Username, err)
		webutil.HandleError(w, responses.InternalServerError{Msg: "failed to process login"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		webutil.HandleError(w, responses.UnauthorizedError{Msg: "invalid username or password"})
		return
	}

	token, err := s.codec.Sign(account.Username)
	if err != nil {
		webutil.HandleError(w, responses.InternalServerError{Msg: "failed to sign session"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "sid",
		Value:    token,
		Path:     "/",
		MaxAge:   31536000,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	webutil.HandleSuccess(w, map[string]string{"username": account.Username})
}

// Logout expires the caller's sid cookie.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "sid",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	webutil.HandleSuccess(w, map[string]string{"message": "logged out"})
}
