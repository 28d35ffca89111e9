package controller

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/store"
	"github.com/heliowatt/solarstream/pkg/utils"
)

const initialRatesLimit = 50

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup registers a new account. The core only consumes the identity
// this produces; everything else here is plumbing around the store.
func (c *Controller) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := utils.HashOrRead(creds.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error registering account")
		return
	}

	acct, err := c.App.Store.CreateAccount(r.Context(), creds.Email, hash)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "email is already registered")
			return
		}
		c.App.Logger.Error("signup failed", zap.String("email", creds.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error registering account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account registered successfully",
		"savings": acct.TotalSavings,
	})
}

// HandleLogin verifies credentials, issues a session cookie and returns the
// account's savings plus its most recent rates.
func (c *Controller) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	acct, err := c.App.Store.GetAccount(r.Context(), creds.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		c.App.Logger.Error("login failed", zap.String("email", creds.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !utils.CheckPassword(acct.PasswordHash, creds.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	rates, err := c.App.Store.RecentSamples(r.Context(), creds.Email, initialRatesLimit)
	if err != nil {
		c.App.Logger.Error("login failed", zap.String("email", creds.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	c.issueSession(w, creds.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"savings": acct.TotalSavings,
		"rates":   rates,
	})
}

// issueSession issues a session cookie
func (c *Controller) issueSession(w http.ResponseWriter, email string) {
	ttl := 8 * time.Hour
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": email,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	})
	ss, _ := token.SignedString(c.App.JWTSecret)
	http.SetCookie(w, &http.Cookie{
		Name:     "ss_session",
		Value:    ss,
		Path:     "/",
		HttpOnly: true,
		Secure:   os.Getenv("ENVIRONMENT") == "production",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(ttl.Seconds()),
	})
}
