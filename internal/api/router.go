// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herald-notify/herald/internal/middleware"
)

// Router assembles the HTTP handler tree.
type Router struct {
	handler       *Handler
	authenticator *Authenticator
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router over the handler set.
func NewRouter(handler *Handler, authenticator *Authenticator, chiMW *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		authenticator: authenticator,
		chiMiddleware: chiMW,
	}
}

// Setup builds the Chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	// Health endpoints: permissive rate limit for monitoring probes.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Login: strictest rate limit to slow credential stuffing.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitLogin)).Post("/login", router.authenticator.Login)
	})

	// Owner-scoped data endpoints. Everything below requires a bearer token.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))
		r.Use(router.authenticator.RequireAuth())

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", router.handler.NotificationList)
			r.Get("/unread-count", router.handler.NotificationUnreadCount)
			r.Post("/read-all", router.handler.NotificationMarkAllRead)
			r.Get("/{id}", router.handler.NotificationGet)
			r.Post("/{id}/read", router.handler.NotificationMarkRead)
			r.Delete("/{id}", router.handler.NotificationDelete)
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", router.handler.PreferencesGet)
			r.Put("/", router.handler.PreferencesPut)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", router.handler.SubscriptionList)
			r.With(router.chiMiddleware.RateLimitCustom(RateLimitWrite)).Post("/", router.handler.SubscriptionCreate)
			r.Get("/{id}", router.handler.SubscriptionGet)
			r.Put("/{id}", router.handler.SubscriptionUpdate)
			r.Delete("/{id}", router.handler.SubscriptionDelete)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", router.handler.RuleList)
			r.With(router.chiMiddleware.RateLimitCustom(RateLimitWrite)).Post("/", router.handler.RuleCreate)
			r.Get("/{id}", router.handler.RuleGet)
			r.Put("/{id}", router.handler.RuleUpdate)
			r.Delete("/{id}", router.handler.RuleDelete)
		})

		r.Route("/digests", func(r chi.Router) {
			r.Get("/", router.handler.DigestList)
			r.Get("/{id}", router.handler.DigestGet)
		})

		// Event intake for upstream producers.
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitWrite)).Post("/events", router.handler.EventPublish)

		r.Post("/test-notification", router.handler.TestNotification)
		r.Get("/channels", router.handler.ChannelList)
	})

	// Live push. Compression and the metrics wrapper would break the
	// hijacked connection, so the upgrade route carries neither.
	r.Route("/ws", func(r chi.Router) {
		r.Use(router.authenticator.RequireAuth())
		r.Get("/", router.handler.WebSocket)
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
