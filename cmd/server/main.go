package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	config "github.com/leaderflow/delivery/configs"
	"github.com/leaderflow/delivery/internal/api/handlers"
	"github.com/leaderflow/delivery/internal/api/middleware"
	job "github.com/leaderflow/delivery/internal/jobs"
	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/queue"
	"github.com/leaderflow/delivery/internal/repository"
	"github.com/leaderflow/delivery/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Api-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewScheduledPostRepository(db)
	credentialRepo := repository.NewSocialCredentialRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	r2Service := service.NewR2Service(*cfg)
	uploadPostService := service.NewUploadPostService(*cfg)
	twitterService := service.NewTwitterService(*cfg)
	linkedinService := service.NewLinkedinService()
	instagramService := service.NewInstagramService(r2Service)

	credentialService := service.NewCredentialService(*cfg, credentialRepo, map[string]service.TokenRefresher{
		models.PlatformTwitter: twitterService,
	})

	adapters := map[string]service.PlatformService{
		models.PlatformTwitter:   twitterService,
		models.PlatformLinkedin:  linkedinService,
		models.PlatformInstagram: instagramService,
	}

	deliveryService := service.NewDeliveryService(postRepo, uploadPostService, credentialService, adapters)
	apiKeyService := service.NewApiKeyService(apiKeyRepo)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	delivery := handlers.NewDeliveryHandler(deliveryService, client)
	api.Post("/posts/schedule", delivery.SchedulePost)
	api.Get("/posts", delivery.ListPosts)
	api.Post("/posts/:id/cancel", delivery.CancelPost)
	api.Post("/posts/:id/reschedule", delivery.ReschedulePost)
	api.Get("/schedule", delivery.ListProviderJobs)

	credentials := handlers.NewCredentialsHandler(credentialService)
	api.Post("/accounts", credentials.Connect)
	api.Get("/accounts", credentials.ListAccounts)
	api.Delete("/accounts/:platform", credentials.Disconnect)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	// reconciliation poller
	reconcileJob := job.NewReconcileJob(postRepo, uploadPostService, deliveryService)
	reconcileJob.Start()

	// queue worker for due direct deliveries
	queueW := queue.NewQueue(deliveryService)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeDeliverPost, queueW.HandleDeliverPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, reconcileJob)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, reconcileJob *job.ReconcileJob) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	reconcileJob.Stop()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
