package controllers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/query"
	"github.com/webprogramming/estate/backend/store"
)

const listingNotFound = "Listing not found"

func CreateListing(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			WriteError(w, r, env.Logger, models.NewAuthenticationError("Unauthorized"))
			return
		}

		var input models.ListingInput
		if err := decodeJSON(w, r, &input); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		var listing models.Listing
		input.Apply(&listing)
		listing.UserRef = userID
		listing.Sanitize()
		if appErr := listing.Validate(); appErr != nil {
			WriteError(w, r, env.Logger, appErr)
			return
		}

		if err := env.Listings.Create(r.Context(), &listing); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		invalidateListingCache(r, env)
		writeJSON(w, http.StatusCreated, listing)
	}
}

// ownedListing loads the listing named in the route and checks that the
// caller owns it. action completes "You can only ... your own listings!".
func ownedListing(r *http.Request, env *Env, action string) (*models.Listing, error) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return nil, models.NewAuthenticationError("Unauthorized")
	}

	listing, err := env.Listings.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.NewNotFoundError(listingNotFound)
		}
		return nil, err
	}

	if listing.UserRef != userID {
		return nil, models.NewAuthorizationError("You can only " + action + " your own listings!")
	}
	return listing, nil
}

func EditListing(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := ownedListing(r, env, "edit")
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		var input models.ListingInput
		if err := decodeJSON(w, r, &input); err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		input.Apply(listing)
		listing.Sanitize()
		if appErr := listing.Validate(); appErr != nil {
			WriteError(w, r, env.Logger, appErr)
			return
		}

		if err := env.Listings.Update(r.Context(), listing, input.PhoneNumber != nil); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = models.NewNotFoundError(listingNotFound)
			}
			WriteError(w, r, env.Logger, err)
			return
		}

		invalidateListingCache(r, env)
		writeJSON(w, http.StatusOK, listing)
	}
}

func DeleteListing(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := ownedListing(r, env, "delete")
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		if err := env.Listings.Delete(r.Context(), listing.ID.Hex(), listing.UserRef); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = models.NewNotFoundError(listingNotFound)
			}
			WriteError(w, r, env.Logger, err)
			return
		}

		invalidateListingCache(r, env)
		writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "Listing has been deleted"})
	}
}

func GetListing(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := env.Listings.FindByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = models.NewNotFoundError(listingNotFound)
			}
			WriteError(w, r, env.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	}
}

// GetListings serves the search page. Results are cached per canonical query.
func GetListings(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := query.Parse(r.URL.Query())
		canonical := params.Values()

		if cached, ok := env.Cache.Get(r.Context(), canonical); ok {
			env.Metrics.RecordCacheLookup(true)
			writeJSON(w, http.StatusOK, cached)
			return
		}
		env.Metrics.RecordCacheLookup(false)

		listings, err := env.Listings.Find(r.Context(), params)
		if err != nil {
			WriteError(w, r, env.Logger, err)
			return
		}

		env.Cache.Set(r.Context(), canonical, listings)
		writeJSON(w, http.StatusOK, listings)
	}
}

// invalidateListingCache drops every cached search page. A search racing
// the write may still cache the old page until its TTL expires.
func invalidateListingCache(r *http.Request, env *Env) {
	if err := env.Cache.Invalidate(r.Context()); err != nil {
		env.Logger.Warn("listing cache invalidation failed", "error", err)
	}
}
