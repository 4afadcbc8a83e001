package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/fasalrakshak-api/internal/config"
	"github.com/yourusername/fasalrakshak-api/internal/handler"
	"github.com/yourusername/fasalrakshak-api/internal/middleware"
	pgRepo "github.com/yourusername/fasalrakshak-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/fasalrakshak-api/internal/repository/redis"
	"github.com/yourusername/fasalrakshak-api/internal/service"
	"github.com/yourusername/fasalrakshak-api/pkg/auth"
	"github.com/yourusername/fasalrakshak-api/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	userRepo := pgRepo.NewUserRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.LifetimeDays, cacheRepo)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	otpService, err := service.NewOTPService(
		userRepo,
		time.Duration(cfg.OTP.ExpireMinutes)*time.Minute,
		cfg.OTP.MaxAttempts,
		cfg.OTP.ResendLimit,
		cfg.OTP.CodePepper,
	)
	if err != nil {
		log.Printf("Failed to initialize OTPService: %v", err)
		os.Exit(1)
	}

	transport, err := newEmailTransport(cfg.Email)
	if err != nil {
		log.Printf("Failed to initialize email transport: %v", err)
		os.Exit(1)
	}

	dispatcher, err := service.NewEmailDispatcher(transport)
	if err != nil {
		log.Printf("Failed to initialize EmailDispatcher: %v", err)
		os.Exit(1)
	}

	authService, err := service.NewAuthService(userRepo, otpService, dispatcher, jwtService, cfg.Email.FrontendURL)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	authHandler := handler.NewAuthHandler(authService)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(cacheRepo)

	signupLimit := middleware.SignupRateLimitConfig()
	if cfg.RateLimit.MaxRequests > 0 {
		signupLimit.MaxRequests = cfg.RateLimit.MaxRequests
	}
	if cfg.RateLimit.WindowMinutes > 0 {
		signupLimit.Window = time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Email.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api/auth")
	{
		api.POST("/signup", rateLimiter.LimitByIP(signupLimit), authHandler.Signup)
		api.POST("/verify-otp", authHandler.VerifyOTP)
		api.POST("/resend-otp", rateLimiter.LimitByIP(signupLimit), authHandler.ResendOTP)
		api.POST("/login", authHandler.Login)
		api.POST("/logout", authHandler.Logout)
		api.GET("/me", authMiddleware.RequireAuth(), authHandler.Me)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Failed to close Redis client: %v", err)
	}

	log.Println("Server exited")
}

// newEmailTransport selects the notification transport from config.
func newEmailTransport(cfg config.EmailConfig) (service.EmailTransport, error) {
	switch cfg.Provider {
	case "resend":
		return service.NewResendTransport(cfg.ResendAPIKey, cfg.From)
	case "smtp":
		return service.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From)
	case "noop", "":
		log.Println("[EmailTransport] No provider configured, using noop transport")
		return &service.NoopTransport{}, nil
	default:
		return nil, errors.New("unsupported email provider: " + cfg.Provider)
	}
}
