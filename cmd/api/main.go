package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hybridtrack/attendance-backend-go/internal/config"
	appHTTP "github.com/hybridtrack/attendance-backend-go/internal/handler/http"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/cron"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/database"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/jwt"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/push"
	"github.com/hybridtrack/attendance-backend-go/internal/repository/postgresql"
	"github.com/hybridtrack/attendance-backend-go/internal/repository/sqlite"
	attendanceService "github.com/hybridtrack/attendance-backend-go/internal/service/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/service/geofence"
	holidayService "github.com/hybridtrack/attendance-backend-go/internal/service/holiday"
	notificationService "github.com/hybridtrack/attendance-backend-go/internal/service/notification"
	syncService "github.com/hybridtrack/attendance-backend-go/internal/service/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
	if err != nil {
		fmt.Println("Error connecting to database:", err)
		return
	}

	remoteStore, err := postgresql.NewRemoteStore(db)
	if err != nil {
		fmt.Println("Error preparing remote store:", err)
		return
	}
	deviceRepo, err := postgresql.NewDeviceRepository(db)
	if err != nil {
		fmt.Println("Error preparing device registry:", err)
		return
	}
	mirror, err := sqlite.NewMirror(cfg.Mirror.Path)
	if err != nil {
		fmt.Println("Error opening local mirror:", err)
		return
	}

	jwtService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiration)
	if err != nil {
		fmt.Println("Error initializing token service:", err)
		return
	}

	engine := syncService.NewEngine(remoteStore, mirror)
	store := attendanceService.NewService(mirror, engine)
	engine.SetApplyFunc(store.ApplyRemote)

	hub := push.NewHub()
	scheduler := notificationService.NewScheduler(store, hub)
	store.SetReminderCanceller(scheduler)

	holidays := holidayService.NewService(store, holidayService.NewHTTPFetcher(cfg.Holiday.BaseURL))
	positions := geofence.NewReportedPositions()
	reconciler := geofence.NewReconciler(store, holidays, positions, hub)
	reconciler.SetFastLookup(mirror)

	jobs := cron.NewReminderJobs(store, holidays, remoteStore, hub, engine)
	cronScheduler := cron.NewScheduler()
	jobs.RegisterJobs(cronScheduler)

	scheduler.Start()
	defer scheduler.Stop()
	cronScheduler.Start()
	defer cronScheduler.Stop()
	defer engine.Close()

	handlers := appHTTP.Handlers{
		Auth:         appHTTP.NewAuthHandler(deviceRepo, jwtService, engine, store),
		Attendance:   appHTTP.NewAttendanceHandler(store, scheduler),
		Profile:      appHTTP.NewProfileHandler(store, scheduler),
		Holiday:      appHTTP.NewHolidayHandler(holidays),
		Location:     appHTTP.NewLocationHandler(positions, reconciler),
		Notification: appHTTP.NewNotificationHandler(hub, engine, scheduler, store, reconciler, scheduler),
		Ops:          appHTTP.NewOpsHandler(jobs, engine),
	}
	router := appHTTP.NewRouter(jwtService, handlers)

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("Server running", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
