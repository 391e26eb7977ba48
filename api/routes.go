package api

import "github.com/go-chi/chi/v5"

func (s *Server) registerRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.securityHeadersMiddleware)

	s.registerObservabilityRoutes()

	s.router.Post("/push/event", s.pushEvent)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.jsonMiddleware)
		r.Get("/session", s.getSession)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Get("/access", s.checkAccess)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/menu", s.getMenu)
			r.Get("/notifications", s.listNotifications)
			r.Post("/notifications/read-all", s.markAllRead)
			r.Post("/notifications/{id}/read", s.markRead)
			r.Post("/push/subscribe", s.subscribePush)
			r.Get("/push/display", s.pendingDisplays)
			r.Post("/push/click", s.clickDisplay)
		})
	})
}
