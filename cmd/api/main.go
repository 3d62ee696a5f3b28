package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
	"github.com/talentgate/cv-evaluator/internal/handlers"
	appLogger "github.com/talentgate/cv-evaluator/internal/logger"
	"github.com/talentgate/cv-evaluator/internal/repositories"
	"github.com/talentgate/cv-evaluator/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := appLogger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}

	docRepo := repositories.NewDocumentRepository(db)
	evalRepo := repositories.NewEvaluationRepository(db)

	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		zlog.Fatal("failed to create upload directory", zap.Error(err))
	}

	extractor := services.NewTextExtractor()
	chunker := services.NewTextChunker()

	provider, err := services.NewProvider(cfg.Provider, cfg.Qdrant.VectorSize, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize provider", zap.Error(err))
	}
	zlog.Info("provider initialized",
		zap.String("name", cfg.Provider.Name),
		zap.Bool("demo_mode", cfg.Provider.DemoMode),
	)

	vectorIndex := services.NewVectorIndexService(cfg.Qdrant, cfg.Provider.DemoMode, zlog)
	if err := vectorIndex.EnsureCollection(context.Background()); err != nil {
		// Degraded but alive: retrieval returns no context without the index.
		zlog.Warn("vector index unavailable, continuing without retrieval context", zap.Error(err))
	}

	scoring := services.NewScoringGenerator(provider, zlog)

	evaluator := services.NewEvaluatorService(
		evalRepo,
		docRepo,
		provider,
		vectorIndex,
		extractor,
		chunker,
		scoring,
		cfg.Retrieval,
		zlog,
	)

	worker := services.NewWorkerService(evaluator, evalRepo, cfg.Worker, zlog)
	worker.Start()

	uploadHandler := handlers.NewUploadHandler(docRepo, storageService, cfg.Storage.MaxFileSize, zlog)
	evaluateHandler := handlers.NewEvaluationHandler(
		evalRepo,
		docRepo,
		worker,
		evaluator,
		cfg.Worker.InlineMode,
		zlog,
	)
	resultHandler := handlers.NewResultHandler(evalRepo)

	app := fiber.New(fiber.Config{
		AppName:      "CV Evaluator API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/upload", uploadHandler.HandleUpload)
	api.Post("/evaluate", evaluateHandler.HandleEvaluate)
	api.Get("/result/:id", resultHandler.HandleGetResult)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "CV Evaluator API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"GET /api/v1/result/:id",
			},
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			zlog.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zlog.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
