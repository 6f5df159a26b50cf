package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"couple-sync-system/handlers"
	"couple-sync-system/middleware"
	"couple-sync-system/models"
	"couple-sync-system/services"
	"couple-sync-system/utils"
	"couple-sync-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // answers and heartbeats are tiny
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError maps driver duplicate-key errors to gorm.ErrDuplicatedKey,
	// which the conditional-insert paths branch on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Couple{},
		&models.GameSession{},
		&models.Question{},
		&models.CoupleStats{},
		&models.StreakRecord{},
		&models.AchievementType{},
		&models.UnlockedAchievement{},
		&models.PairUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	questionService := services.NewQuestionService(db)
	if err := questionService.SeedStarterQuestions(); err != nil {
		log.Fatal("failed to seed question catalog:", err)
	}

	achievementService := services.NewAchievementService(db)
	if err := achievementService.SeedCatalog(); err != nil {
		log.Fatal("failed to seed achievement catalog:", err)
	}

	pairingService := services.NewPairingService(db)
	statsService := services.NewStatsService(db)
	sessionService := services.NewSessionService(db, questionService, statsService, achievementService)

	// --- Presence bus (Redis pub/sub) ---
	presenceBus, err := services.NewRedisPresenceBus()
	if err != nil {
		log.Printf("⚠️  Presence bus unavailable (%v) — presence limited to this instance", err)
		presenceBus = nil
	}
	presenceService := services.NewPresenceService(presenceBus)
	sessionService.Presence = presenceService

	// --- External collaborators ---
	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("COUPLE_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("COUPLE_SERVICE_TOKEN environment variable not set")
	}
	authClient := services.NewAuthServiceClient(authServiceURL, serviceToken)

	if notifyURL := os.Getenv("NOTIFY_SERVICE_URL"); notifyURL != "" {
		sessionService.Notify = services.NewNotifyClient(notifyURL, serviceToken)
	} else {
		log.Println("⚠️  NOTIFY_SERVICE_URL not set — partner nudges disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := presenceService.Start(ctx); err != nil {
		log.Fatal("failed to start presence forwarder:", err)
	}

	// --- Background sync workers ---
	questionSyncClient := workers.NewQuestionSyncClient(db)
	if err := questionSyncClient.BootstrapFromR2(ctx); err != nil {
		log.Printf("⚠️  R2 question-pack bootstrap failed: %v", err)
	}
	go workers.PollQuestions(ctx, questionSyncClient, 5*time.Minute)

	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL != "" {
		pairUserSyncWorker := workers.NewPairUserSyncWorker(db, profileServiceURL, "/api/v1/public/profiles", serviceToken)
		go func() {
			log.Println("Starting Pair User Sync Worker...")
			pairUserSyncWorker.Start(ctx)
		}()
	} else {
		log.Println("⚠️  PROFILE_SERVICE_URL not set — pair_users mirror disabled")
	}

	services.StartMaintenanceScheduler(pairingService, presenceService)

	// ✅ Setup routes — enforced Gateway auth on everything
	handlers.SetupCoupleRoutes(app, pairingService, presenceService)
	handlers.SetupSessionRoutes(app, sessionService, statsService, achievementService, pairingService)
	handlers.SetupPresenceStream(app, presenceService, pairingService, sessionService, authClient)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Question catalog polling running (every 5m)")
	log.Println("✅ Maintenance scheduler running (invite sweep + presence reaper)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
