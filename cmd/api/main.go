package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/oldbyju/platform_backend/internal/config"
	"github.com/oldbyju/platform_backend/internal/db"
	"github.com/oldbyju/platform_backend/internal/handlers"
	"github.com/oldbyju/platform_backend/internal/middleware"
	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/realtime"
	"github.com/oldbyju/platform_backend/internal/services/mailer"
	"github.com/oldbyju/platform_backend/internal/services/rating"
	"github.com/oldbyju/platform_backend/internal/services/razorpay"
	"github.com/oldbyju/platform_backend/internal/services/storage"
	"github.com/oldbyju/platform_backend/internal/services/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	hub := realtime.NewHub()
	go hub.Run()

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Job{},
		&models.JobApplication{},
		&models.Order{},
		&models.Review{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		log.Fatal(err)
	}

	razorpaySvc := razorpay.NewRazorpayService()
	storageSvc := storage.NewCloudinaryService()
	mailSvc := mailer.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	walletSvc := wallet.NewWalletService(gdb)
	ratingSvc := rating.NewRatingService(gdb)

	authH := &handlers.AuthHandler{
		DB:         gdb,
		RDB:        rdb,
		Mailer:     mailSvc,
		JWTSecret:  cfg.JWTSecret,
		AccessMin:  cfg.AccessMin,
		RefreshMin: cfg.RefreshMin,
	}
	googleH := &handlers.GoogleOAuthHandler{
		Auth:           authH,
		GoogleClientID: cfg.GoogleClientID,
		GoogleSecret:   cfg.GoogleSecret,
		GoogleRedirect: cfg.GoogleRedirect,
		FrontendURL:    cfg.FrontendURL,
	}
	userH := handlers.NewUserHandler(gdb, razorpaySvc, walletSvc, storageSvc, mailSvc, cfg.AdminEmail)
	jobH := handlers.NewJobHandler(gdb, storageSvc)
	applicationH := handlers.NewJobApplicationHandler(gdb, storageSvc)
	orderH := handlers.NewOrderHandler(gdb, hub, razorpaySvc, walletSvc)
	reviewH := handlers.NewReviewHandler(gdb, ratingSvc)
	chatH := handlers.NewChatHandler(gdb, hub, rdb, cfg.JWTSecret)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/refresh", authH.Refresh)
	api.Post("/auth/logout", authH.Logout)
	api.Post("/auth/verify-otp", authH.VerifyOTP)
	api.Post("/auth/regenerate-otp", authH.RegenerateOTP)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)

	api.Get("/jobs", jobH.GetJobs)
	api.Get("/users/teachers", userH.ExploreTeachers)
	api.Get("/reviews/:userId", reviewH.GetReviewsForUser)
	api.Post("/contact-us", userH.ContactUs)

	// gateway callbacks carry their own HMAC signature instead of a session
	api.Post("/webhook/razorpay", orderH.HandleWebhook)

	// protected (JWT)
	protected := api.Group("/",
		middleware.JWTFromCookie(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/users/me", userH.GetProfile)
	protected.Put("/users/me", userH.UpdateProfile)
	protected.Get("/users/me/stats", userH.GetStats)
	protected.Post("/users/payout", middleware.RequireRoles("teacher"), userH.TransferPayout)
	protected.Post("/report-issue", userH.ReportIssue)

	protected.Post("/jobs", middleware.RequireRoles("student"), jobH.CreateJob)
	protected.Patch("/jobs/:id/archive", middleware.RequireRoles("student"), jobH.ArchiveJob)
	protected.Delete("/jobs/:id", middleware.RequireRoles("student"), jobH.DeleteJob)

	protected.Post("/job-applications", middleware.RequireRoles("teacher"), applicationH.ApplyToJob)
	protected.Get("/job-applications/:jobId", applicationH.GetJobApplications)
	protected.Patch("/job-applications/:id/status", middleware.RequireRoles("student"), applicationH.UpdateApplicationStatus)

	protected.Post("/orders", middleware.RequireRoles("student"), orderH.CreateOrder)
	protected.Get("/orders", orderH.GetOrders)
	protected.Put("/orders/status", orderH.UpdateOrderStatus)
	protected.Post("/orders/complete", orderH.CompleteOrder)

	protected.Post("/reviews", reviewH.SubmitReview)

	chat := protected.Group("/chat")
	chat.Post("/conversations", chatH.CreateOrGetConversation)
	chat.Get("/conversations", chatH.GetUserConversations)
	chat.Get("/conversations/:id/messages", chatH.GetMessages)
	chat.Post("/messages", chatH.SendMessage)

	// WebSocket endpoint (authentication via handshake token)
	app.Get("/ws/chat", websocket.New(chatH.WebSocketHandler))

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
