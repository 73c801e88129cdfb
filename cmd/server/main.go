package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
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
	"github.com/robfig/cron"

	config "github.com/pagecast/pagecast/configs"
	"github.com/pagecast/pagecast/internal/api/handlers"
	"github.com/pagecast/pagecast/internal/api/middleware"
	job "github.com/pagecast/pagecast/internal/jobs"
	"github.com/pagecast/pagecast/internal/platform"
	"github.com/pagecast/pagecast/internal/publisher"
	"github.com/pagecast/pagecast/internal/queue"
	"github.com/pagecast/pagecast/internal/repository"
	"github.com/pagecast/pagecast/internal/service"
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

	postRepo := repository.NewPostRepository(db)
	postTargetRepo := repository.NewPostTargetRepository(db)
	targetRepo := repository.NewTargetRepository(db)
	deadLetterRepo := repository.NewDeadLetterRepository(db)

	mediaService := service.NewMediaService(*cfg)
	platformClient := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformTimeout)
	targetPublisher := publisher.NewPlatformPublisher(platformClient, cfg.SecretKey)
	batchPublisher := publisher.NewBatchPublisher(postRepo, postTargetRepo, targetRepo, targetPublisher, mediaService, cfg.TargetPublishDelay)

	// Queue selection is an explicit configuration choice. The in-memory
	// queue keeps the same interface but nothing survives a restart.
	var (
		jobQueue  queue.JobQueue
		memQueue  *queue.MemoryQueue
		client    *asynq.Client
		inspector *asynq.Inspector
		server    *asynq.Server
	)

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	if cfg.QueueDisabled {
		slog.Warn("durable queue disabled, using in-memory jobs; scheduled posts will not survive a restart")
		memQueue = queue.NewMemoryQueue(cfg.RetryBaseDelay, cfg.WorkerConcurrency)
		jobQueue = memQueue
	} else {
		client = asynq.NewClient(redisConn)
		defer client.Close()
		inspector = asynq.NewInspector(redisConn)
		jobQueue = queue.NewAsynqQueue(client, inspector)
	}

	sweeper := job.NewSweeper(postRepo, jobQueue, cfg.PublishMaxRetry)
	worker := queue.NewWorker(batchPublisher, sweeper)
	deadLetterReporter := job.NewDeadLetterReporter(inspector, deadLetterRepo)

	scheduleService := service.NewScheduleService(postRepo, postTargetRepo, jobQueue, batchPublisher, *cfg)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
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
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key, X-User-ID",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	schedule := handlers.NewScheduleHandler(scheduleService, jobQueue)
	api.Post("/posts/schedule", schedule.SchedulePost)
	api.Post("/posts/unschedule", schedule.UnschedulePost)
	api.Post("/posts/reschedule", schedule.ReschedulePost)
	api.Post("/posts/publish", schedule.PublishNow)
	api.Post("/posts/sweep", schedule.SweepNow)
	api.Get("/posts", schedule.PostInfo)

	ops := handlers.NewOpsHandler(deadLetterRepo)
	api.Get("/dead_letters", ops.ListDeadLetters)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(targetRepo, *cfg)
	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	if !cfg.QueueDisabled {
		c.AddFunc("@every 00h05m00s", deadLetterReporter.Report)
	}
	c.Start()

	sweepLoop := job.NewRecurring("overdue-sweep", cfg.SweepInterval, cfg.SweepRetryInterval, sweeper.RunRecurring)
	sweepLoop.Start()

	if cfg.QueueDisabled {
		memQueue.Start(worker.HandleJob, deadLetterReporter.RecordDirect)
	} else {
		server = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return cfg.RetryBaseDelay << n
			},
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, worker.HandlePublishTask)
		mux.HandleFunc(queue.TaskTypeSweepPosts, worker.HandleSweepTask)

		go func() {
			log.Println("Starting the Asynq server...")
			if err := server.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, c, sweepLoop, server, memQueue)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, c *cron.Cron, sweepLoop *job.Recurring, server *asynq.Server, memQueue *queue.MemoryQueue) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	sweepLoop.Stop()

	if server != nil {
		server.Shutdown()
	}
	if memQueue != nil {
		memQueue.Stop()
	}

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
