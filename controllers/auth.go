package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/store"
	"github.com/webprogramming/estate/backend/utils"
)

const (
	invalidCredentials = "Invalid email or password."

	usernameSuffixLen   = 4
	generatedPassLen    = 16
	provisionMaxAttempt = 3
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type googleRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

func Signup(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.TrimSpace(req.Email)

		if req.Username == "" || req.Email == "" || req.Password == "" {
			env.Metrics.RecordAuth("signup", "failure")
			WriteError(w, r, env.Logger, models.NewValidationError("All fields are required."))
			return
		}

		if err := ensureAvailable(r, env, req.Email, req.Username); err != nil {
			env.Metrics.RecordAuth("signup", "failure")
			WriteError(w, r, env.Logger, err)
			return
		}

		hashedPwd, err := utils.HashPassword(req.Password)
		if err != nil {
			WriteError(w, r, env.Logger, fmt.Errorf("hash password: %w", err))
			return
		}

		user := &models.User{
			Username:   req.Username,
			Email:      req.Email,
			Password:   hashedPwd,
			AuthMethod: models.AuthMethodPassword,
		}
		// The unique indexes still catch a signup racing this one.
		if err := env.Users.Create(r.Context(), user); err != nil {
			env.Metrics.RecordAuth("signup", "failure")
			WriteError(w, r, env.Logger, err)
			return
		}

		env.Metrics.RecordAuth("signup", "success")
		env.Logger.Info("user registered", "user_id", user.ID.Hex())
		writeJSON(w, http.StatusCreated, models.MessageResponse{Message: "User registered successfully"})
	}
}

func ensureAvailable(r *http.Request, env *Env, email, username string) error {
	if _, err := env.Users.FindByEmail(r.Context(), email); err == nil {
		return models.NewConflictError("email already exists.")
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if _, err := env.Users.FindByUsername(r.Context(), username); err == nil {
		return models.NewConflictError("username already exists.")
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func Signin(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signinRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}
		req.Email = strings.TrimSpace(req.Email)

		if req.Email == "" || req.Password == "" {
			env.Metrics.RecordAuth("signin", "failure")
			WriteError(w, r, env.Logger, models.NewValidationError("Email and password are required."))
			return
		}

		user, err := env.Users.FindByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				env.Metrics.RecordAuth("signin", "failure")
				err = models.NewAuthError(invalidCredentials)
			}
			WriteError(w, r, env.Logger, err)
			return
		}

		// Accounts created through federated login carry no usable password.
		if !utils.CheckPasswordHash(req.Password, user.Password) {
			env.Metrics.RecordAuth("signin", "failure")
			WriteError(w, r, env.Logger, models.NewAuthError(invalidCredentials))
			return
		}

		ttl := sessionTTL
		if req.RememberMe {
			ttl = rememberTTL
		}
		if err := startSession(w, env, user, ttl); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		env.Metrics.RecordAuth("signin", "success")
		writeJSON(w, http.StatusOK, user)
	}
}

// Google signs in the account owning the verified email, creating it on
// first use. The identity provider exchange happens in the client.
func Google(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req googleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}
		req.Email = strings.TrimSpace(req.Email)

		if req.Email == "" {
			env.Metrics.RecordAuth("google", "failure")
			WriteError(w, r, env.Logger, models.NewValidationError("Email is required."))
			return
		}

		user, err := env.Users.FindByEmail(r.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			user, err = provisionGoogleUser(r, env, req)
		}
		if err != nil {
			env.Metrics.RecordAuth("google", "failure")
			WriteError(w, r, env.Logger, err)
			return
		}

		if err := startSession(w, env, user, sessionTTL); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		env.Metrics.RecordAuth("google", "success")
		writeJSON(w, http.StatusOK, user)
	}
}

func provisionGoogleUser(r *http.Request, env *Env, req googleRequest) (*models.User, error) {
	password, err := utils.RandomString(generatedPassLen)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hashedPwd, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	base := usernameBase(req.Name, req.Email)
	for attempt := 1; ; attempt++ {
		suffix, err := utils.RandomString(usernameSuffixLen)
		if err != nil {
			return nil, fmt.Errorf("generate username: %w", err)
		}

		user := &models.User{
			Username:   base + suffix,
			Email:      req.Email,
			Password:   hashedPwd,
			Avatar:     strings.TrimSpace(req.Photo),
			AuthMethod: models.AuthMethodGoogle,
		}
		err = env.Users.Create(r.Context(), user)
		if err == nil {
			env.Logger.Info("provisioned federated user", "user_id", user.ID.Hex())
			return user, nil
		}

		var dup *store.DuplicateKeyError
		if !errors.As(err, &dup) {
			return nil, err
		}
		if dup.Field == "email" {
			// Another request provisioned the same account first.
			return env.Users.FindByEmail(r.Context(), req.Email)
		}
		if attempt >= provisionMaxAttempt {
			return nil, err
		}
	}
}

// usernameBase lowercases the display name and drops its whitespace.
func usernameBase(name, email string) string {
	base := strings.ToLower(strings.Join(strings.Fields(name), ""))
	if base == "" {
		base = strings.ToLower(strings.SplitN(email, "@", 2)[0])
	}
	return base
}

func startSession(w http.ResponseWriter, env *Env, user *models.User, ttl time.Duration) error {
	token, _, err := env.Tokens.GenerateJWT(user.ID.Hex(), ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	setSessionCookie(w, token, ttl, env.SecureCookies)
	return nil
}

func Signout(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clearSessionCookie(w, env.SecureCookies)
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: "User signed out successfully"})
	}
}
