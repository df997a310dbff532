package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/zeyadhelal16/bank-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware банковской системы.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register-customer", h.RegisterCustomer)
		r.Post("/auth/register-employee", h.RegisterEmployee)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/auth/logout", h.Logout)

			r.Get("/account/profile", h.GetProfile)
			r.Get("/account/balance", h.GetBalance)
			r.Get("/account/transactions", h.GetTransactions)

			r.Get("/customers", h.ListCustomers)
			r.Get("/customers/{accountId}/balance", h.GetCustomerBalance)
			r.Get("/employees", h.ListEmployees)

			r.Post("/transactions/deposit", h.Deposit)
			r.Post("/transactions/withdraw", h.Withdraw)
			r.Post("/transactions/transfer", h.Transfer)
		})
	})

	r.Get("/health", h.Health)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
