package main

import (
	"github.com/comadj/car-system/internal/handlers"
	"github.com/comadj/car-system/internal/middleware"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine. The
// returned limiters must be stopped on shutdown.
func registerRoutes(r *gin.Engine, svc *appServices) []*middleware.RateLimiter {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins...))

	// 5 login attempts per second per IP, one report generation every 30s
	// per user
	loginLimiter := middleware.NewRateLimiter(5, 10, middleware.ByIP)
	generateLimiter := middleware.NewRateLimiter(1.0/30, 2, middleware.ByUser)

	r.GET("/health", svc.healthHandler.CheckHealth)

	db := svc.db
	carHandler := handlers.NewCarHandler(db, svc.loc)
	customerHandler := handlers.NewCustomerHandler(db)
	dashboardHandler := handlers.NewDashboardHandler(db, svc.loc)
	reports := svc.reportHandler

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", loginLimiter.Middleware(), svc.authHandler.Login)
			auth.POST("/refresh", loginLimiter.Middleware(), svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// SSE (public route with internal token validation)
		api.GET("/reports/jobs/events", svc.sseHandler.StreamJobEvents)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// CARs
			protected.GET("/cars", carHandler.List)
			protected.GET("/cars/filters", carHandler.FilterOptions)
			protected.GET("/cars/import/template", carHandler.ImportTemplate)
			protected.POST("/cars/import", carHandler.Import)
			protected.GET("/cars/:id", carHandler.Get)
			protected.POST("/cars", carHandler.Create)
			protected.PUT("/cars/:id", carHandler.Update)
			protected.DELETE("/cars/:id", carHandler.Delete)

			// Customer contacts
			protected.GET("/customers", customerHandler.List)
			protected.GET("/customers/:id", customerHandler.Get)
			protected.POST("/customers", customerHandler.Create)
			protected.PUT("/customers/:id", customerHandler.Update)

			// Dashboard
			protected.GET("/dashboard/status-stats", dashboardHandler.GetStatusStats)
			protected.GET("/dashboard/accumulated-scores", dashboardHandler.GetAccumulatedScores)
			protected.GET("/dashboard/monthly-trend", dashboardHandler.GetMonthlyTrend)

			// Weekly reports
			protected.GET("/reports/weekly-reports", reports.List)
			protected.GET("/reports/weekly-reports/:id", reports.Get)
			protected.GET("/reports/weekly-reports/:id/export", reports.Export)
			protected.GET("/reports/weekly/latest", reports.Latest)
			protected.POST("/reports/generate", generateLimiter.Middleware(), reports.Generate)
			protected.POST("/reports/generate-async", generateLimiter.Middleware(), reports.GenerateAsync)
			protected.GET("/reports/jobs/active", reports.ActiveJobs)
			protected.GET("/reports/jobs/:jobId/status", reports.JobStatus)
			protected.GET("/reports/scheduler/status", reports.SchedulerStatus)
		}

		// Manager routes
		manager := api.Group("")
		manager.Use(middleware.AuthRequired(), middleware.ManagerRequired(), middleware.AuditLog())
		{
			manager.POST("/cars/rescore", carHandler.Rescore)
			manager.POST("/customers/dedupe", customerHandler.Dedupe)
			manager.POST("/reports/send-email", reports.SendEmail)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			admin.POST("/reports/scheduler/start", reports.StartScheduler)
			admin.POST("/reports/scheduler/stop", reports.StopScheduler)
			admin.POST("/reports/scheduler/manual-run", reports.ManualRun)
			admin.DELETE("/customers/:id", customerHandler.Delete)

			// Users
			userHandler := handlers.NewUserHandler(db)
			admin.GET("/users", userHandler.List)
			admin.GET("/users/:id", userHandler.Get)
			admin.POST("/users", userHandler.Create)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			// LLM Configs
			llmConfigHandler := handlers.NewLLMConfigHandler(db)
			admin.GET("/llm-configs", llmConfigHandler.List)
			admin.GET("/llm-configs/active", llmConfigHandler.GetActive)
			admin.GET("/llm-configs/:id", llmConfigHandler.GetByID)
			admin.POST("/llm-configs", llmConfigHandler.Create)
			admin.PUT("/llm-configs/:id", llmConfigHandler.Update)
			admin.DELETE("/llm-configs/:id", llmConfigHandler.Delete)

			// System Config
			systemConfig := svc.systemConfigHandler
			admin.GET("/system-config/weekly-report", systemConfig.GetWeeklyReport)
			admin.PUT("/system-config/weekly-report", systemConfig.UpdateWeeklyReport)
			admin.GET("/system-config/email", systemConfig.GetEmail)
			admin.PUT("/system-config/email", systemConfig.UpdateEmail)
			admin.GET("/system-config/ldap", systemConfig.GetLDAPConfig)
			admin.PUT("/system-config/ldap", systemConfig.UpdateLDAPConfig)
			admin.GET("/system-config/holiday-countries", systemConfig.GetHolidayCountries)

			// System Logs
			systemLogHandler := handlers.NewSystemLogHandler(db)
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)

			// AI usage
			aiUsageHandler := handlers.NewAIUsageHandler(db)
			admin.GET("/ai-usage/stats", aiUsageHandler.GetStats)
			admin.GET("/ai-usage/providers", aiUsageHandler.GetProviderBreakdown)
		}
	}
	return []*middleware.RateLimiter{loginLimiter, generateLimiter}
}
