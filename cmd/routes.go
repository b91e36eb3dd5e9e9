package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) JWTMiddlewareWithRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return app.JWTMiddleware(next, requiredRole)
	}
}

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole("user"))
	adminAuthMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole("admin"))

	mux := pat.New()

	// Webhooks: провайдеры аутентифицируются подписью, не JWT.
	mux.Post("/payments/webhooks/:provider", standardMiddleware.ThenFunc(app.webhookHandler.Receive))

	// Payments
	mux.Post("/payments", authMiddleware.ThenFunc(app.paymentHandler.CreatePayment))
	mux.Get("/payments/user/:user_id", authMiddleware.ThenFunc(app.paymentHandler.ListUserPayments))
	mux.Get("/payments/:id", authMiddleware.ThenFunc(app.paymentHandler.GetPayment))

	// Subscriptions
	mux.Get("/subscriptions/me", authMiddleware.ThenFunc(app.subscriptionHandler.GetMySubscription))
	mux.Get("/subscriptions/user/:user_id", authMiddleware.ThenFunc(app.subscriptionHandler.GetSubscription))

	// Admin
	mux.Get("/admin/payments/user/:user_id", adminAuthMiddleware.ThenFunc(app.paymentHandler.ListUserPayments))

	return mux
}
