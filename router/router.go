// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/handlers"
	"github.com/danielhkuo/works-portal/media"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
)

// Role groups
var (
	admins     = []string{models.RoleAdmin}
	approvers  = []string{models.RoleCE, models.RoleCOO, models.RoleCEO}
	raisers    = []string{models.RoleEngineer, models.RoleAdmin}
	assigners  = []string{models.RoleAdmin, models.RoleCE}
	templaters = []string{models.RoleAdmin, models.RoleClerk}
)

func NewRouter(store *db.Store, cfg cliparse.Config, log *zap.Logger, files *media.Store) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(files.Collectors()...)
	metrics := middleware.NewMetrics(reg)

	sessions := auth.NewSessions(store, cfg.SessionSecret, cfg.SessionTTL)
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRate)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(store, cfg, log, sessions)
	regionHandler := handlers.NewRegionHandler(store, cfg, log)
	workHandler := handlers.NewWorkRequestHandler(store, cfg, log, files)
	mediaHandler := handlers.NewMediaHandler(store, cfg, log, files)
	notificationHandler := handlers.NewNotificationHandler(store, cfg, log)
	referenceHandler := handlers.NewReferenceHandler(store, cfg, log)
	templateHandler := handlers.NewTemplateHandler(store, cfg, log)
	fileHandler := handlers.NewEFileHandler(store, cfg, log)
	dashboardHandler := handlers.NewDashboardHandler(store, cfg, log)

	r := chi.NewRouter()
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger(log))
	r.Use(metrics.Handler)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("works-portal API v1"))
	})

	r.With(loginLimiter.Handler).Post("/auth/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(sessions, log))

		// Media streams and chunk bodies skip compression.
		r.Get("/media/{id}", mediaHandler.ServeMedia)
		r.Put("/media/uploads/{id}/chunks/{index}", mediaHandler.PutChunk)

		r.Group(func(r chi.Router) {
			r.Use(gziphandler.GzipHandler)

			// Session
			r.Post("/auth/logout", userHandler.Logout)
			r.Get("/auth/me", userHandler.Me)
			r.Post("/auth/password", userHandler.ChangePassword)

			// User administration
			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireRole(admins...))
				r.Get("/", userHandler.ListUsers)
				r.Post("/", userHandler.CreateUser)
				r.Get("/{id}", userHandler.GetUser)
				r.Patch("/{id}", userHandler.UpdateUser)
				r.Post("/{id}/password", userHandler.ResetPassword)
			})

			// Geography
			r.Get("/regions", regionHandler.ListRegions)
			r.With(middleware.RequireRole(admins...)).Post("/regions", regionHandler.CreateRegion)
			r.With(middleware.RequireRole(admins...)).Delete("/regions/{id}", regionHandler.DeleteRegion)

			// Work requests and approvals
			r.Route("/work-requests", func(r chi.Router) {
				r.With(middleware.RequireRole(raisers...)).Post("/", workHandler.CreateWorkRequest)
				r.Get("/", workHandler.ListWorkRequests)
				r.Get("/{id}", workHandler.GetWorkRequest)
				r.Patch("/{id}", workHandler.UpdateWorkRequest)
				r.Delete("/{id}", workHandler.DeleteWorkRequest)
				r.Post("/{id}/complete", workHandler.CompleteWorkRequest)
				r.With(middleware.RequireRole(assigners...)).Post("/{id}/assign", workHandler.AssignWorkRequest)
				r.With(middleware.RequireRole(approvers...)).Post("/{id}/approvals", workHandler.DecideWorkRequest)
			})
			r.With(middleware.RequireRole(approvers...)).Get("/approvals/pending", workHandler.PendingApprovals)

			// Media
			r.Get("/media", mediaHandler.ListMedia)
			r.Post("/media", mediaHandler.UploadMedia)
			r.Delete("/media/{id}", mediaHandler.DeleteMedia)
			r.Post("/media/uploads", mediaHandler.InitUpload)
			r.Get("/media/uploads/{id}", mediaHandler.GetUpload)
			r.Post("/media/uploads/{id}/complete", mediaHandler.CompleteUpload)
			r.Delete("/media/uploads/{id}", mediaHandler.AbortUpload)

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.ListNotifications)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Post("/read-all", notificationHandler.MarkAllRead)
				r.Post("/{id}/read", notificationHandler.MarkRead)
				r.Delete("/{id}", notificationHandler.DeleteNotification)
			})

			// E-filing
			r.Route("/efiling", func(r chi.Router) {
				r.Get("/categories", referenceHandler.ListCategories)
				r.With(middleware.RequireRole(admins...)).Post("/categories", referenceHandler.CreateCategory)
				r.With(middleware.RequireRole(admins...)).Put("/categories/{id}", referenceHandler.UpdateCategory)

				r.Get("/statuses", referenceHandler.ListStatuses)
				r.With(middleware.RequireRole(admins...)).Post("/statuses", referenceHandler.CreateStatus)
				r.With(middleware.RequireRole(admins...)).Put("/statuses/{id}", referenceHandler.UpdateStatus)

				r.Get("/templates", templateHandler.ListTemplates)
				r.Get("/templates/{id}", templateHandler.GetTemplate)
				r.Post("/templates/{id}/render", templateHandler.RenderTemplate)
				r.With(middleware.RequireRole(templaters...)).Post("/templates", templateHandler.CreateTemplate)
				r.With(middleware.RequireRole(templaters...)).Put("/templates/{id}", templateHandler.UpdateTemplate)
				r.With(middleware.RequireRole(templaters...)).Delete("/templates/{id}", templateHandler.DeleteTemplate)

				r.Post("/files", fileHandler.CreateFile)
				r.Get("/files", fileHandler.ListFiles)
				r.Get("/files/{id}", fileHandler.GetFile)
				r.Patch("/files/{id}", fileHandler.UpdateFile)
				r.Get("/files/{id}/recipients", fileHandler.Recipients)
				r.Post("/files/{id}/mark", fileHandler.MarkFile)
				r.Post("/files/{id}/status", fileHandler.ChangeStatus)
				r.Post("/files/{id}/sign", fileHandler.SignFile)
				r.Get("/files/{id}/signatures/verify", fileHandler.VerifySignatures)
			})

			r.Get("/dashboard", dashboardHandler.GetDashboard)
		})
	})

	return r
}
