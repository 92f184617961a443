package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the full HTTP surface: the REST API, the WebSocket
// entry point and the uploaded-image files.
func NewRouter(h *Handlers, ws http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/ws", ws)
	r.Get("/uploads/{filename}", h.ServeUpload)

	r.Route("/api", func(r chi.Router) {
		r.Post("/app-users", h.RegisterUser)
		r.Get("/app-users/{id}", h.GetUser)

		r.Post("/connection-requests", h.CreateConnectionRequest)
		r.Get("/connection-requests/incoming/{userId}", h.IncomingRequests)
		r.Get("/connection-requests/outgoing/{userId}", h.OutgoingRequests)
		r.Post("/connection-requests/{id}/accept", h.AcceptConnectionRequest)
		r.Post("/connection-requests/{id}/reject", h.RejectConnectionRequest)

		r.Get("/connections/{userId}", h.ListConnections)
		r.Delete("/connections/{id}", h.DeleteConnection)

		r.Post("/device-tokens", h.RegisterDeviceToken)
		r.Delete("/device-tokens", h.RemoveDeviceToken)

		r.Post("/family-connections", h.CreateFamilyConnection)
		r.Get("/family-connections/{parentId}", h.ListFamilyConnections)

		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/{userId}", h.ListTasks)
		r.Patch("/tasks/{id}/complete", h.CompleteTask)

		r.Post("/notifications/send", h.SendNotification)

		r.Post("/upload-image", h.UploadImage)
	})

	return r
}
