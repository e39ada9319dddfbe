package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/webprogramming/estate/backend/controllers"
	"github.com/webprogramming/estate/backend/middleware"
	"github.com/webprogramming/estate/backend/models"
)

// Routes mounts the API under /api. authLimiter may be nil to disable
// throttling of the auth endpoints.
//
// Every route is registered on router itself. Nested PathPrefix subrouters
// swallow method mismatches, which would turn a wrong method into a 404.
func Routes(router *mux.Router, env *controllers.Env, tokens middleware.TokenValidator, authLimiter *middleware.IPRateLimiter) {
	chain := []mux.MiddlewareFunc{
		middleware.RequestID,
		middleware.Recovery(env.Logger),
		middleware.Logging(env.Logger),
		middleware.Metrics(env.Metrics),
	}
	router.Use(chain...)
	// mux skips router middleware for unmatched requests, so the fallbacks carry the chain themselves.
	router.NotFoundHandler = wrap(uniformError(env, models.NewNotFoundError("Route not found")), chain)
	router.MethodNotAllowedHandler = wrap(uniformError(env, &models.AppError{Kind: models.KindMethod, Message: "Method not allowed"}), chain)

	requireAuth := middleware.AuthMiddleware(tokens, env.Logger)
	throttle := func(h http.Handler) http.Handler { return h }
	if authLimiter != nil {
		throttle = authLimiter.Middleware
	}

	// Auth routes
	router.Handle("/api/auth/signup", throttle(controllers.Signup(env))).Methods(http.MethodPost)
	router.Handle("/api/auth/signin", throttle(controllers.Signin(env))).Methods(http.MethodPost)
	router.Handle("/api/auth/google", throttle(controllers.Google(env))).Methods(http.MethodPost)
	router.Handle("/api/auth/signout", throttle(controllers.Signout(env))).Methods(http.MethodGet)

	// Listing routes
	router.Handle("/api/listing/get/{id}", controllers.GetListing(env)).Methods(http.MethodGet)
	router.Handle("/api/listing/getListings", controllers.GetListings(env)).Methods(http.MethodGet)
	router.Handle("/api/listing/create", requireAuth(controllers.CreateListing(env))).Methods(http.MethodPost)
	router.Handle("/api/listing/edit/{id}", requireAuth(controllers.EditListing(env))).Methods(http.MethodPut)
	router.Handle("/api/listing/delete/{id}", requireAuth(controllers.DeleteListing(env))).Methods(http.MethodDelete)

	// User routes
	router.Handle("/api/user/update/{id}", requireAuth(controllers.UpdateUser(env))).Methods(http.MethodPost)
	router.Handle("/api/user/delete/{id}", requireAuth(controllers.DeleteUser(env))).Methods(http.MethodDelete)
	router.Handle("/api/user/listings/{id}", requireAuth(controllers.GetUserListings(env))).Methods(http.MethodGet)
	router.Handle("/api/user/{id}", requireAuth(controllers.GetUser(env))).Methods(http.MethodGet)
}

func wrap(h http.Handler, chain []mux.MiddlewareFunc) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func uniformError(env *controllers.Env, appErr *models.AppError) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		controllers.WriteError(w, r, env.Logger, appErr)
	})
}
