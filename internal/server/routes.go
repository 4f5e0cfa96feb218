package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"librarian/internal/catalog"
	"librarian/internal/circulation"
	"librarian/internal/httpx"
	"librarian/internal/membership"
	"librarian/internal/notify"
	"librarian/internal/tasks"
)

func (a *App) routes() http.Handler {
	books := catalog.NewHandler(a.Books)
	members := membership.NewHandler(a.Membership, a.Tokens)
	circ := circulation.NewHandler(a.Circulation, a.Scanner, a.Catalog)
	notes := notify.NewHandler(a.Notify)
	jobs := tasks.NewHandler(a.Runner, a.Config.ReportWaitTimeout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.logger, "/healthz", "/metrics"))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", members.HandleRegister)
		r.Post("/auth/login", members.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(membership.Authenticate(a.Tokens))

			r.Get("/auth/me", members.HandleMe)

			r.Get("/books", books.HandleListBooks)
			r.Get("/books/{id}", books.HandleGetBook)

			r.Get("/patrons/{id}", members.HandleGetPatron)
			r.Get("/patrons/{id}/books", members.HandleHeldBooks)

			r.Post("/circulation/checkout", circ.HandleCheckout)
			r.Post("/circulation/return", circ.HandleReturn)

			r.Get("/notifications", notes.HandleListNotifications)
			r.Post("/notifications/{id}/read", notes.HandleMarkRead)
			r.Delete("/notifications/{id}", notes.HandleDeleteNotification)

			r.Group(func(r chi.Router) {
				r.Use(membership.RequireAdmin)

				r.Post("/books", books.HandleAddBook)
				r.Delete("/books/{id}", books.HandleRemoveBook)
				r.Get("/books/{id}/history", books.HandleHistory)

				r.Get("/patrons", members.HandleListPatrons)
				r.Delete("/patrons/{id}", members.HandleDeletePatron)

				r.Get("/circulation/overdue-books", circ.HandleOverdue)

				r.Get("/email-logs", notes.HandleListEmailLogs)
				r.Get("/email-logs/{id}", notes.HandleGetEmailLog)

				r.Post("/tasks/send-reminders", jobs.HandleSendReminders)
				r.Post("/tasks/weekly-report", jobs.HandleWeeklyReport)
				r.Post("/tasks/test-email", jobs.HandleTestEmail)
				r.Get("/tasks/{id}", jobs.HandleGetTask)
			})
		})
	})

	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps := a.Healthy(r.Context())
	status := http.StatusOK
	for _, ok := range deps {
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	httpx.JSON(w, status, map[string]any{"status": http.StatusText(status), "dependencies": deps})
}

// requestLogger logs one line per request except for the skipped paths.
func requestLogger(logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	logger = logger.With("component", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
