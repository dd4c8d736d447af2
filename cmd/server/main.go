package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shiftline/shiftline-backend/internal/audit"
	authhandler "github.com/shiftline/shiftline-backend/internal/auth/handler"
	authmw "github.com/shiftline/shiftline-backend/internal/auth/middleware"
	authrepo "github.com/shiftline/shiftline-backend/internal/auth/repository"
	authservice "github.com/shiftline/shiftline-backend/internal/auth/service"
	"github.com/shiftline/shiftline-backend/internal/auth/token"
	"github.com/shiftline/shiftline-backend/internal/company"
	leavehandler "github.com/shiftline/shiftline-backend/internal/leave/handler"
	leaverepo "github.com/shiftline/shiftline-backend/internal/leave/repository"
	leaveservice "github.com/shiftline/shiftline-backend/internal/leave/service"
	payrollhandler "github.com/shiftline/shiftline-backend/internal/payroll/handler"
	payrollrepo "github.com/shiftline/shiftline-backend/internal/payroll/repository"
	payrollservice "github.com/shiftline/shiftline-backend/internal/payroll/service"
	"github.com/shiftline/shiftline-backend/internal/permission"
	schedulehandler "github.com/shiftline/shiftline-backend/internal/schedule/handler"
	schedulerepo "github.com/shiftline/shiftline-backend/internal/schedule/repository"
	scheduleservice "github.com/shiftline/shiftline-backend/internal/schedule/service"
	timehandler "github.com/shiftline/shiftline-backend/internal/timeclock/handler"
	timerepo "github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	timeservice "github.com/shiftline/shiftline-backend/internal/timeclock/service"
	userhandler "github.com/shiftline/shiftline-backend/internal/user/handler"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	userservice "github.com/shiftline/shiftline-backend/internal/user/service"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/config"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/mailer"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
)

// maintenanceInterval paces OTP and session cleanup sweeps.
const maintenanceInterval = time.Hour

func main() {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("shiftline", cfg.Server.Environment)
	log.Info().Msg("starting shiftline backend")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Messaging is optional; with it disabled events are dropped.
	var publisher messaging.EventPublisher = messaging.NoopPublisher{}
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = messaging.NewPublisher(rmq, messaging.ExchangeEvents, "shiftline", log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	var sender mailer.EmailSender
	if cfg.RabbitMQ.Enabled {
		sender = mailer.NewEventMailer(publisher, log)
	} else {
		sender = mailer.NewLogMailer(log)
	}

	clk := clock.Real()
	codec := token.NewCodec(&cfg.JWT)

	// Repositories
	users := userrepo.NewUserRepository(db)
	sessions := authrepo.NewSessionRepository(db)
	companies := company.NewRepository(db)
	perms := permission.NewRepository(db)
	entries := timerepo.NewTimeEntryRepository(db)
	cash := timerepo.NewCashDrawerRepository(db)
	shifts := schedulerepo.NewShiftRepository(db)
	templates := schedulerepo.NewTemplateRepository(db)
	payrollRuns := payrollrepo.NewPayrollRepository(db)
	leaves := leaverepo.NewLeaveRepository(db)

	// Services
	auditor := audit.NewRecorder(db, publisher, log)
	checker := permission.NewChecker(perms, log)
	companySvc := company.NewService(companies, auditor, publisher, log)
	authSvc := authservice.NewAuthService(db, users, sessions, companies, codec, sender, clk, publisher, log, cfg.Mail.SetupURL)
	userSvc := userservice.NewUserService(db, users, sessions, codec, sender, auditor, publisher, log, cfg.Mail.SetupURL)
	punchSvc := timeservice.NewPunchService(db, entries, cash, users, companySvc, clk, auditor, publisher, log)
	entrySvc := timeservice.NewEntryService(entries, users, companySvc, auditor, publisher, log)
	cashSvc := timeservice.NewCashDrawerService(db, cash, companySvc, clk, auditor, publisher, log)
	scheduleSvc := scheduleservice.NewScheduleService(db, shifts, templates, users, companySvc, clk, auditor, publisher, log)
	payrollSvc := payrollservice.NewPayrollService(db, payrollRuns, entries, users, companySvc, clk, auditor, publisher, log)
	leaveSvc := leaveservice.NewLeaveService(leaves, users, clk, auditor, sender, publisher, log)

	// Handlers
	authH := authhandler.NewAuthHandler(authSvc, log)
	companyH := company.NewHandler(companySvc, log)
	userH := userhandler.NewUserHandler(userSvc, log)
	timeH := timehandler.NewTimeHandler(punchSvc, entrySvc, log)
	kioskH := timehandler.NewKioskHandler(punchSvc, companySvc, log)
	cashH := timehandler.NewCashDrawerHandler(cashSvc, log)
	scheduleH := schedulehandler.NewScheduleHandler(scheduleSvc, log)
	payrollH := payrollhandler.NewPayrollHandler(payrollSvc, log)
	leaveH := leavehandler.NewLeaveHandler(leaveSvc, log)

	mw := authmw.New(codec, authSvc, checker, log)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"database": db.Health(req.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})
	r.Get("/health/live", func(w http.ResponseWriter, req *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(req.Context()); err != nil {
			httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public: credential lifecycle
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register-company", authH.RegisterCompany)
			r.Post("/login", authH.Login)
			r.Post("/refresh", authH.Refresh)
			r.Post("/logout", authH.Logout)
			r.Post("/forgot-password", authH.ForgotPassword)
			r.Post("/reset-password", authH.ResetPassword)
			r.Get("/set-password/info", authH.SetPasswordInfo)
			r.Post("/set-password", authH.SetPassword)

			r.Group(func(r chi.Router) {
				r.Use(mw.Authenticate)
				r.Post("/send-verification-pin", authH.SendVerificationPIN)
				r.Post("/verify-email", authH.VerifyEmail)
			})
		})

		// Public: kiosk endpoints keyed by company slug
		r.Route("/kiosk", func(r chi.Router) {
			r.Post("/{slug}/info", kioskH.Info)
			r.Post("/check-pin", kioskH.CheckPIN)
			r.Post("/clock", kioskH.Clock)
		})

		// Authenticated surface
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate)
			r.Use(mw.RequireVerified)

			r.Get("/users/me", userH.Me)

			r.Route("/time", func(r chi.Router) {
				r.Post("/punch-me", timeH.PunchMe)
				r.Get("/my", timeH.ListMine)

				r.Group(func(r chi.Router) {
					r.Use(mw.RequirePermission(permission.TimeEntriesView))
					r.Post("/punch", timeH.Punch)
					r.Post("/punch-by-pin", timeH.PunchByPIN)
					r.Get("/admin/time", timeH.List)
				})
				r.With(mw.RequirePermission(permission.TimeEntriesEdit)).
					Put("/admin/time/{id}", timeH.Edit)
				r.With(mw.RequirePermission(permission.TimeEntriesManualCreate)).
					Post("/admin/time/manual", timeH.CreateManual)
				r.With(mw.RequirePermission(permission.TimeEntriesDelete)).
					Delete("/admin/time/{id}", timeH.Delete)
			})

			r.Route("/admin/cash-drawer", func(r chi.Router) {
				r.With(mw.RequirePermission(permission.CashDrawerView)).Get("/", cashH.List)
				r.With(mw.RequirePermission(permission.CashDrawerView)).Get("/summary", cashH.Summary)
				r.With(mw.RequirePermission(permission.CashDrawerExport)).Get("/export", cashH.Export)
				r.With(mw.RequirePermission(permission.CashDrawerView)).Get("/{id}", cashH.Get)
				r.With(mw.RequirePermission(permission.CashDrawerEdit)).Put("/{id}", cashH.Edit)
				r.With(mw.RequirePermission(permission.CashDrawerReview)).Post("/{id}/review", cashH.Review)
			})

			r.Route("/shifts", func(r chi.Router) {
				r.Get("/my", scheduleH.ListMine)

				r.Group(func(r chi.Router) {
					r.Use(mw.RequirePermission(permission.ScheduleView))
					r.Get("/", scheduleH.List)
				})
				r.Group(func(r chi.Router) {
					r.Use(mw.RequirePermission(permission.ScheduleManage))
					r.Post("/", scheduleH.Create)
					r.Put("/{id}", scheduleH.Update)
					r.Post("/{id}/approve", scheduleH.Approve)
					r.Delete("/{id}", scheduleH.Delete)
					r.Post("/bulk/week/preview", scheduleH.PreviewWeek)
					r.Post("/bulk/week", scheduleH.CommitWeek)
					r.Post("/templates", scheduleH.CreateTemplate)
					r.Get("/templates", scheduleH.ListTemplates)
					r.Post("/templates/{id}/generate", scheduleH.Generate)
				})
			})

			r.Route("/payroll", func(r chi.Router) {
				r.Get("/my", payrollH.My)

				r.With(mw.RequirePermission(permission.PayrollGenerate)).Post("/generate", payrollH.Generate)
				r.With(mw.RequirePermission(permission.PayrollView)).Get("/", payrollH.List)
				r.With(mw.RequirePermission(permission.PayrollView)).Get("/{id}", payrollH.Get)
				r.With(mw.RequirePermission(permission.PayrollView)).Get("/{id}/export", payrollH.Export)
				r.With(mw.RequirePermission(permission.PayrollFinalize)).Post("/{id}/finalize", payrollH.Finalize)
				r.With(mw.RequirePermission(permission.PayrollVoid)).Post("/{id}/void", payrollH.Void)
				r.With(mw.RequirePermission(permission.PayrollGenerate)).Delete("/{id}", payrollH.Delete)
			})

			r.Route("/leave", func(r chi.Router) {
				r.Post("/", leaveH.Submit)
				r.Get("/my", leaveH.ListMine)
				r.Post("/{id}/cancel", leaveH.Cancel)

				r.With(mw.RequirePermission(permission.LeaveView)).Get("/", leaveH.List)
				r.With(mw.RequirePermission(permission.LeaveView)).Get("/{id}", leaveH.Get)
				r.With(mw.RequirePermission(permission.LeaveManage)).Post("/{id}/approve", leaveH.Approve)
				r.With(mw.RequirePermission(permission.LeaveManage)).Post("/{id}/reject", leaveH.Reject)
			})

			r.Route("/admin/company", func(r chi.Router) {
				r.With(mw.RequirePermission(permission.CompanyView)).Get("/", companyH.Get)
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole("ADMIN"))
					r.Put("/name", companyH.Rename)
					r.Put("/settings", companyH.UpdateSettings)
					r.Put("/kiosk", companyH.SetKioskEnabled)
				})
			})

			r.Route("/users/admin/employees", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(mw.RequirePermission(permission.EmployeesView))
					r.Get("/", userH.List)
					r.Get("/{id}", userH.Get)
				})
				r.Group(func(r chi.Router) {
					r.Use(mw.RequirePermission(permission.EmployeesManage))
					r.Post("/", userH.Invite)
					r.Post("/{id}/resend-invitation", userH.ResendInvitation)
					r.Put("/{id}", userH.Update)
					r.Put("/{id}/pin", userH.SetPIN)
					r.Delete("/{id}/pin", userH.ClearPIN)
					r.Post("/{id}/deactivate", userH.Deactivate)
					r.Post("/{id}/reactivate", userH.Reactivate)
				})
			})
		})
	})

	// Periodic maintenance: expired OTP state and dead sessions.
	maintenanceCtx, stopMaintenance := context.WithCancel(context.Background())
	defer stopMaintenance()
	go func() {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-maintenanceCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(maintenanceCtx, time.Minute)
				if n, err := users.CleanupExpiredOTPState(ctx); err != nil {
					log.Warn().Err(err).Msg("OTP cleanup failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Msg("cleared expired OTP state")
				}
				if n, err := sessions.PurgeExpired(ctx); err != nil {
					log.Warn().Err(err).Msg("session purge failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Msg("purged expired sessions")
				}
				cancel()
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopMaintenance()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
