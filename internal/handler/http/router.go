package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/jwt"
)

type Handlers struct {
	Auth         AuthHandler
	Attendance   AttendanceHandler
	Profile      ProfileHandler
	Holiday      HolidayHandler
	Location     LocationHandler
	Notification NotificationHandler
	Ops          OpsHandler
}

func NewRouter(jwtService jwt.Service, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "attendance-tracker"),
		slog.String("version", "v1.0.0"),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth/device", func(r chi.Router) {
			r.Post("/register", h.Auth.RegisterDevice)
			r.Post("/token", h.Auth.DeviceToken)
		})

		// Requires a device token
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(jwtService.JWTAuth()))
			r.Use(middleware.DeviceAuth(jwtService.JWTAuth()))

			r.Route("/attendance", func(r chi.Router) {
				r.Get("/", h.Attendance.All)
				r.Post("/bulk", h.Attendance.BulkMark)
				r.Get("/summary/month/{month}", h.Attendance.MonthSummary)
				r.Get("/summary/week/{date}", h.Attendance.WeekSummary)
				r.Route("/{date}", func(r chi.Router) {
					r.Get("/", h.Attendance.Get)
					r.Put("/", h.Attendance.Mark)
					r.Delete("/", h.Attendance.Clear)
				})
			})

			r.Route("/planned-days", func(r chi.Router) {
				r.Get("/", h.Attendance.PlannedDays)
				r.Route("/{date}", func(r chi.Router) {
					r.Put("/", h.Attendance.PlanDay)
					r.Delete("/", h.Attendance.UnplanDay)
				})
			})

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", h.Profile.GetProfile)
				r.Put("/", h.Profile.UpdateProfile)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.Profile.GetSettings)
				r.Put("/", h.Profile.UpdateSettings)
			})

			r.Route("/holidays/{country}/{year}", func(r chi.Router) {
				r.Get("/", h.Holiday.List)
				r.Post("/refresh", h.Holiday.Refresh)
			})

			r.Post("/location/check-in", h.Location.CheckIn)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/stream", h.Notification.Stream)
				r.Get("/scheduled", h.Notification.Scheduled)
				r.Post("/respond", h.Notification.Respond)
			})

			r.Route("/ops", func(r chi.Router) {
				r.Get("/reminder-eligibility", h.Ops.ReminderEligibility)
				r.Get("/sync-status", h.Ops.SyncStatus)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	return r
}
