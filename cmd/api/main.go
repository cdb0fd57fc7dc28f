package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"

	"github.com/JAY4T/kaakazini/internal/config"
	"github.com/JAY4T/kaakazini/internal/db"
	"github.com/JAY4T/kaakazini/internal/handlers"
	"github.com/JAY4T/kaakazini/internal/jobflow"
	"github.com/JAY4T/kaakazini/internal/logging"
	"github.com/JAY4T/kaakazini/internal/metrics"
	"github.com/JAY4T/kaakazini/internal/middleware"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/realtime"
	"github.com/JAY4T/kaakazini/internal/services/catalog"
	"github.com/JAY4T/kaakazini/internal/services/craftsman"
	"github.com/JAY4T/kaakazini/internal/services/googleauth"
	"github.com/JAY4T/kaakazini/internal/services/jobs"
	"github.com/JAY4T/kaakazini/internal/services/mpesa"
	"github.com/JAY4T/kaakazini/internal/services/notify"
	"github.com/JAY4T/kaakazini/internal/services/reset"
	"github.com/JAY4T/kaakazini/internal/services/storage"
	"github.com/JAY4T/kaakazini/internal/utils"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	gdb, err := db.Connect(cfg.DBDSN, log)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := db.Migrate(gdb); err != nil {
		log.WithError(err).Fatal("migrate database")
	}
	if err := db.SeedAdmin(gdb, cfg.AdminEmail, cfg.AdminPassword, log); err != nil {
		log.WithError(err).Fatal("seed admin")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without redis, notifications are logged and dropped and reset tokens live in memory.
	var (
		publisher  notify.Publisher = notify.Dropper{Log: log}
		resetStore reset.Store      = reset.NewMemoryStore()
		worker     *notify.Worker
	)
	rdb, err := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, notifications disabled")
	} else {
		queue := notify.NewRedisQueue(rdb, "notify:events")
		publisher = queue
		resetStore = reset.NewRedisStore(rdb)
		worker = notify.NewWorker(queue,
			notify.NewBrevo(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName),
			notify.NewAfricasTalking(cfg.SMSUsername, cfg.SMSAPIKey, cfg.SMSSenderID),
			log, cfg.NotifyWorkers, cfg.NotifyMaxAttempts, cfg.MpesaCountryCode)
		worker.Start(ctx)
	}

	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	var uploader handlers.Uploader
	store, err := storage.New(storage.Options{
		Endpoint:  cfg.StorageEndpoint,
		Region:    cfg.StorageRegion,
		Bucket:    cfg.StorageBucket,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	})
	if err != nil {
		log.WithError(err).Warn("object storage unavailable, uploads disabled")
	} else {
		uploader = store
	}

	jobSvc := jobs.NewService(jobs.NewGormRepository(gdb),
		mpesa.NewService(cfg.MpesaBaseURL, cfg.MpesaAPIKey, cfg.PaymentTimeout),
		publisher, hub, log, jobs.Options{
			RejectPolicy:   jobflow.ParseQuoteRejectPolicy(cfg.QuoteRejectPolicy),
			FeePercent:     cfg.CompanyFeePercent,
			AttemptTTL:     cfg.PaymentAttemptTTL,
			PaymentTimeout: cfg.PaymentTimeout,
			CountryCode:    cfg.MpesaCountryCode,
		})
	craftsmanSvc := craftsman.NewService(gdb, publisher, log)
	catalogSvc := catalog.NewService(gdb, log)

	limiter := middleware.NewRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRatePerMinute/4+1, log)

	sweeper := jobs.NewSweeper(jobSvc, log)
	if err := sweeper.Every("@every 10m", func() { limiter.Cleanup(30 * time.Minute) }); err != nil {
		log.WithError(err).Fatal("schedule limiter cleanup")
	}
	if err := sweeper.Start("@every 1m"); err != nil {
		log.WithError(err).Fatal("start payment sweeper")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: utils.ErrorHandler,
		BodyLimit:    int(cfg.UploadMaxBytes) + 1024*1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))
	app.Use(middleware.RequestLogger(log))
	app.Use(metrics.Middleware())

	app.Get("/metrics", metrics.Handler())
	app.Get("/ws/jobs", realtime.Upgrade(cfg.JWTSecret), realtime.JobsSocket(hub, log))

	api := app.Group("/api")
	auth := middleware.Authenticated(cfg.JWTSecret)
	admin := middleware.RequireRoles(models.RoleAdmin)

	handlers.NewAuthHandler(gdb, handlers.AuthConfig{
		JWTSecret:       cfg.JWTSecret,
		AccessTTL:       cfg.AccessTokenTTL,
		RefreshTTL:      cfg.RefreshTokenTTL,
		RememberTTL:     cfg.RememberTTL,
		CookieSecure:    cfg.CookieSecure,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}, publisher, reset.NewService(resetStore, cfg.ResetTokenTTL),
		googleauth.New(cfg.GoogleClientID, cfg.GoogleSecret, cfg.GoogleRedirect), log).
		Routes(api, limiter.Handler(), auth)
	handlers.NewCraftsmanHandler(craftsmanSvc, uploader, cfg.UploadMaxBytes, log).Routes(api, auth, admin)
	handlers.NewCatalogHandler(catalogSvc, craftsmanSvc, craftsmanSvc, uploader, cfg.UploadMaxBytes, log).Routes(api, auth, admin)
	handlers.NewJobRequestHandler(jobSvc, craftsmanSvc, uploader, cfg.UploadMaxBytes, log).Routes(api, auth)
	handlers.NewUploadHandler(uploader, cfg.UploadMaxBytes, log).Routes(api, auth)

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.WithError(err).Fatal("listen")
		}
	}()
	log.WithField("port", cfg.AppPort).Info("kaakazini api started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	sweeper.Stop(shutdownCtx)
	cancel()
	if worker != nil {
		worker.Wait()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
