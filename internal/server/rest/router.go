package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for the notification API.
//
// Route layout:
//
//	GET    /healthz                          liveness probe (no authentication)
//	GET    /api/v1/view                      derived view snapshot
//	PUT    /api/v1/view/filters              replace the UI filters
//	POST   /api/v1/view/open                 list opened (auto mark-read)
//	POST   /api/v1/notifications             publish an event
//	GET    /api/v1/notifications/{id}        one event, unless preferences or mutes hide it
//	POST   /api/v1/notifications/{id}/read
//	POST   /api/v1/notifications/{id}/pin    toggle
//	DELETE /api/v1/notifications/{id}        dismiss
//	POST   /api/v1/notifications/read-all
//	POST   /api/v1/notifications/clear-read
//	POST   /api/v1/groups/{key}/toggle
//	POST   /api/v1/cursor/{op}               up, down, activate, read, dismiss, close
//	GET    /api/v1/preferences
//	PATCH  /api/v1/preferences               merge a flat key-value document
//	GET    /api/v1/mutes
//	POST   /api/v1/mutes
//	DELETE /api/v1/mutes/{id}
//	GET    /api/v1/connection
//	POST   /api/v1/connection/retry
//	GET    /ws/notifications                 change stream, when configured
//
// auth enables JWT validation on /api and /ws routes. Pass nil to disable
// it.
func NewRouter(srv *Server, auth *JWTConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(JWTMiddleware(*auth))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/view", srv.handleGetView)
			r.Put("/view/filters", srv.handlePutFilters)
			r.Post("/view/open", srv.handleOpen)

			r.Route("/notifications", func(r chi.Router) {
				r.Post("/", srv.handlePostNotification)
				r.Post("/read-all", srv.bulk(srv.engine.MarkAllRead))
				r.Post("/clear-read", srv.bulk(srv.engine.ClearRead))
				r.Get("/{id}", srv.handleGetNotification)
				r.Post("/{id}/read", srv.byID(srv.engine.MarkRead))
				r.Post("/{id}/pin", srv.byID(srv.engine.TogglePin))
				r.Delete("/{id}", srv.byID(srv.engine.Dismiss))
			})

			r.Post("/groups/{key}/toggle", srv.handleToggleGroup)
			r.Post("/cursor/{op}", srv.handleCursor)

			r.Get("/preferences", srv.handleGetPreferences)
			r.Patch("/preferences", srv.handlePatchPreferences)

			r.Get("/mutes", srv.handleGetMutes)
			r.Post("/mutes", srv.handlePostMute)
			r.Delete("/mutes/{id}", srv.handleDeleteMute)

			r.Get("/connection", srv.handleGetConnection)
			r.Post("/connection/retry", srv.handleRetry)
		})

		if srv.stream != nil {
			r.Method(http.MethodGet, "/ws/notifications", srv.stream)
		}
	})

	return r
}
