package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/store"
	"github.com/webprogramming/estate/backend/utils"
)

const userNotFound = "User not found"

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Avatar   *string `json:"avatar"`
}

// selfOnly returns the route id when it belongs to the caller.
func selfOnly(r *http.Request, action string) (string, error) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", models.NewAuthenticationError("Unauthorized")
	}
	id := mux.Vars(r)["id"]
	if id != userID {
		return "", models.NewAuthorizationError("You can only " + action)
	}
	return id, nil
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func UpdateUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := selfOnly(r, "update your own account!")
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		update := models.UserUpdate{
			Username: nonBlank(req.Username),
			Email:    nonBlank(req.Email),
			Avatar:   nonBlank(req.Avatar),
		}
		if req.Password != nil && *req.Password != "" {
			hashedPwd, err := utils.HashPassword(*req.Password)
			if err != nil {
				WriteError(w, r, env.Logger, fmt.Errorf("hash password: %w", err))
				return
			}
			update.Password = &hashedPwd
		}
		if update.IsEmpty() {
			WriteError(w, r, env.Logger, models.NewValidationError("Nothing to update."))
			return
		}

		user, err := env.Users.Update(r.Context(), id, update)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = models.NewNotFoundError(userNotFound)
			}
			WriteError(w, r, env.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// DeleteUser removes the account and every listing it owns, then ends the session.
func DeleteUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := selfOnly(r, "delete your own account!")
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		if err := env.Users.Delete(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = models.NewNotFoundError(userNotFound)
			}
			WriteError(w, r, env.Logger, err)
			return
		}

		// The account is gone at this point. Listings left behind by a
		// failed cascade are orphans, not a live account without its data.
		removed, err := env.Listings.DeleteByOwner(r.Context(), id)
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}
		if removed > 0 {
			invalidateListingCache(r, env)
		}

		env.Logger.Info("user deleted", "user_id", id, "listings_removed", removed)
		clearSessionCookie(w, env.SecureCookies)
		writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "User has been deleted"})
	}
}

func GetUserListings(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := selfOnly(r, "view your own listings!")
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		listings, err := env.Listings.FindByOwner(r.Context(), id)
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, listings)
	}
}

// GetUser returns the contact view of any account to a signed-in caller.
func GetUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := env.Users.FindByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = models.NewNotFoundError(userNotFound)
			}
			WriteError(w, r, env.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Public())
	}
}
