// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"droptracker-ingest/attachment"
	"droptracker-ingest/authgate"
	"droptracker-ingest/config"
	"droptracker-ingest/dedup"
	"droptracker-ingest/external"
	"droptracker-ingest/groupsync"
	"droptracker-ingest/handlers"
	"droptracker-ingest/leaderboard"
	"droptracker-ingest/models"
	"droptracker-ingest/notifications"
	"droptracker-ingest/points"
	"droptracker-ingest/processors"
	"droptracker-ingest/resolver"
	"droptracker-ingest/scheduler"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Player{},
		&models.User{},
		&models.Group{},
		&models.Membership{},
		&models.Item{},
		&models.NPC{},

		&models.Drop{},
		&models.PersonalBest{},
		&models.CombatAchievement{},
		&models.CollectionLogEntry{},
		&models.Pet{},

		&models.NotificationQueue{},
		&models.GroupConfiguration{},

		&models.PointCredit{},
		&models.PointDebit{},
		&models.PremiumFeature{},
		&models.FeatureActivation{},
		&models.RecurringPointGrant{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("⚠️  Redis not reachable at startup (%v) — leaderboard writes will fail until it returns", err)
	}
	cancelPing()

	// Attachment sink: local disk by default, R2 when configured.
	var s3Backend *attachment.S3Backend
	if cfg.UseS3Attachments {
		s3Backend, err = attachment.NewS3Backend(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket, cfg.R2CDNBaseURL)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		log.Println("✅ Attachment sink using R2 object storage")
	} else if err := os.MkdirAll(cfg.AttachmentStoreRoot, 0o755); err != nil {
		log.Fatal("failed to ensure attachment store root:", err)
	}
	sink := attachment.New(cfg.AttachmentStoreRoot, cfg.AttachmentPublicBase, s3Backend)

	ext := external.New(cfg.ExternalMetadataBaseURL, cfg.SemanticServiceBaseURL, cfg.PricingServiceBaseURL)
	notifier := notifications.New(db)
	res := resolver.New(db, ext, notifier)
	gate := authgate.New(db)
	board := leaderboard.New(rdb, db)
	ledger := points.New(db)
	dd := dedup.New()

	refresher := leaderboard.NewRefresher(func(refreshCtx context.Context, groupID uint) {
		log.Printf("✅ board refresh for group %d", groupID)
	}, cfg.QueueLength)
	go refresher.Run(ctx)

	svc := processors.NewService(db, dd, gate, res, ext, notifier, ledger, board, refresher, sink, cfg.DiscordMessageFooter)

	syncer := groupsync.New(db, func(rosterCtx context.Context, externalGroupID string) ([]uint, error) {
		return ext.GroupRoster(rosterCtx, externalGroupID)
	}, notifier)

	stopScheduler, err := scheduler.Start(ctx, scheduler.Deps{
		Ledger:    ledger,
		GroupSync: syncer,
		Raids:     svc.Coalescer(),
	})
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // screenshots, not game bundles
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handlers.SetupIngestRoutes(app, handlers.NewIngest(svc, db))
	handlers.SetupViewRoutes(app, handlers.NewViews(db, board, rdb))
	handlers.SetupAdminRoutes(app, handlers.NewAdmin(db, board, ledger), cfg.IngestServiceToken)

	// Static file serving for locally stored attachments.
	if !cfg.UseS3Attachments {
		app.Use(cfg.AttachmentPublicBase, filesystem.New(filesystem.Config{
			Root:   http.Dir(cfg.AttachmentStoreRoot),
			MaxAge: 3600,
		}))
	}

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Ingestion server running on port %d", cfg.APIPort)
	log.Println("✅ Group sync worker scheduled")
	log.Println("✅ Board refresh actor running")

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := stopScheduler(); err != nil {
		log.Printf("Error stopping scheduler: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	log.Println("Server shutdown complete")
}
