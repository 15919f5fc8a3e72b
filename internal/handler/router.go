package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/bibliohispa-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса библиотеки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/db", h.GetDatabase)
		r.Post("/restore", h.RestoreBackup)
		r.Get("/badges", h.GetBadges)
		r.Get("/leaderboard", h.GetLeaderboard)

		r.Route("/actions", func(r chi.Router) {
			r.Post("/checkout", h.Checkout)
			r.Post("/return", h.Return)
			r.Post("/review", h.Review)
		})

		r.Post("/users", h.SaveUsers)
		r.Post("/users/create", h.CreateUser)
		r.Put("/users/{id}", h.UpdateUser)
		r.Delete("/users/{id}", h.DeleteUser)

		r.Post("/books", h.SaveBooks)
		r.Post("/books/create", h.CreateBook)
		r.Put("/books/{id}", h.UpdateBook)
		r.Delete("/books/{id}", h.DeleteBook)

		r.Post("/transactions", h.SaveTransactions)
		r.Post("/reviews", h.SaveReviews)
		r.Post("/pointHistory", h.SavePointHistory)
		r.Post("/settings", h.SaveSettings)

		r.Post("/points/adjust", h.AdjustPoints)
		r.Delete("/points/{id}", h.DeletePointEntry)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
