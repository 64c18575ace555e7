package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	redisclient "github.com/yungbote/reelnotes-backend/internal/clients/redis"
	"github.com/yungbote/reelnotes-backend/internal/data/db"
	chatrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/chat"
	jobrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/jobs"
	versionrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/versions"
	"github.com/yungbote/reelnotes-backend/internal/http/handlers"
	"github.com/yungbote/reelnotes-backend/internal/jobs"
	chatmod "github.com/yungbote/reelnotes-backend/internal/modules/chat"
	"github.com/yungbote/reelnotes-backend/internal/modules/notes/steps"
	"github.com/yungbote/reelnotes-backend/internal/platform/config"
	"github.com/yungbote/reelnotes-backend/internal/platform/envutil"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/server"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.LoadPipeline()
	if err != nil {
		log.Fatal("invalid pipeline config", "error", err)
	}

	// Postgres
	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("postgres migration failed", "error", err)
	}
	thePG := pg.DB()

	// Repos
	jobRepo := jobrepo.NewJobRepo(thePG, log)
	versionRepo := versionrepo.NewVersionRepo(thePG, log)
	messageRepo := chatrepo.NewChatMessageRepo(thePG, log)

	// Blob store
	var store services.BlobStore
	if os.Getenv("GCS_BUCKET_NAME") != "" {
		store, err = services.NewBucketStore(log)
		if err != nil {
			log.Fatal("GCS init failed", "error", err)
		}
	} else {
		log.Warn("GCS_BUCKET_NAME not set; using in-memory blob store")
		store = services.NewMemoryBlobStore()
	}

	// Redis, with in-process fallbacks
	var cache redisclient.VerdictCache
	var status services.JobStatusSink = services.NopStatusSink{}
	if os.Getenv("REDIS_ADDR") != "" {
		cache, err = redisclient.NewVerdictCache(log)
		if err != nil {
			log.Fatal("redis verdict cache init failed", "error", err)
		}
		bus, err := redisclient.NewStatusBus(log)
		if err != nil {
			log.Fatal("redis status bus init failed", "error", err)
		}
		status = services.NewRedisStatusSink(log, bus)
	} else {
		log.Warn("REDIS_ADDR not set; using in-memory verdict cache, no status bus")
		cache = redisclient.NewMemoryVerdictCache()
	}

	// External services
	ai, err := openai.New(log)
	if err != nil {
		log.Fatal("model client init failed", "error", err)
	}
	decoder := services.NewVideoDecoder(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := decoder.AssertReady(ctx); err != nil {
		log.Fatal("ffmpeg/ffprobe not available", "error", err)
	}

	renderer, err := steps.NewRenderer(log)
	if err != nil {
		log.Fatal("annotation renderer init failed", "error", err)
	}

	ledger := services.NewVersionLedger(thePG, log, versionRepo, store)

	// Worker pool
	buildDeps := steps.BuildDeps{
		Log:      log,
		Jobs:     jobRepo,
		Ledger:   ledger,
		Store:    store,
		Decoder:  decoder,
		AI:       ai,
		Cache:    cache,
		Status:   status,
		Renderer: renderer,
		Cfg:      cfg,
	}
	worker := jobs.NewWorker(log, buildDeps)
	worker.Start(ctx)

	// Chat
	chatDeps := chatmod.Deps{
		Tutor: chatmod.TutorDeps{
			Log:      log,
			AI:       ai,
			Ledger:   ledger,
			Messages: messageRepo,
		},
		Editor: chatmod.EditorDeps{
			Log:      log,
			AI:       ai,
			Ledger:   ledger,
			Messages: messageRepo,
			Cfg:      cfg,
		},
	}

	// HTTP
	router := server.NewRouter(server.RouterConfig{
		JobHandler:     handlers.NewJobHandler(log, jobRepo, store),
		VersionHandler: handlers.NewVersionHandler(log, ledger, store),
		ChatHandler:    handlers.NewChatHandler(log, chatDeps, messageRepo),
	})

	port := envutil.String("PORT", "8080")
	log.Info("starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}
