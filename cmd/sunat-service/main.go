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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/api"
	"github.com/andes-labs/sunat-service/internal/compliance"
	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/database"
	"github.com/andes-labs/sunat-service/internal/email"
	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/services"
	"github.com/andes-labs/sunat-service/internal/sunat"
	"github.com/andes-labs/sunat-service/internal/webhook"
	"github.com/andes-labs/sunat-service/internal/worker"
)

func main() {
	// Cargar configuración
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Configurar logging
	logger := setupLogger(cfg)
	logger.Info("Starting SUNAT Service...")

	// Configurar modo de Gin
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Conectar a la base de datos
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	// Conectar a Redis (requerido para idempotencia)
	redis, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.Fatalf("Error connecting to Redis: %v", err)
	}
	defer redis.Close()

	// Repositorios
	docRepo := database.NewDocumentRepository(db, logger)
	companyRepo := database.NewCompanyRepository(db, logger)
	clientRepo := database.NewClientRepository(db, logger)
	attemptRepo := database.NewAttemptRepository(db, logger)
	webhookRepo := database.NewWebhookRepository(db, logger)
	apiKeyRepo := database.NewAPIKeyRepository(db, logger)

	// Bus de eventos de ciclo de vida de documentos
	bus := events.NewBus(logger)

	// Despachador de webhooks suscrito al bus
	dispatcher := webhook.NewDispatcher(webhookRepo, logger)
	dispatcher.Register(bus)

	// Notificaciones por correo (opcional)
	if cfg.Email.ResendAPIKey != "" {
		resendService := email.NewResendService(cfg.Email.ResendAPIKey, cfg.Email.OperatorEmail, logger)
		notifier := email.NewNotifier(resendService, companyRepo, clientRepo, logger)
		notifier.Register(bus)
		logger.Info("Email notifications enabled")
	} else {
		logger.Warn("Resend API key not provided, email notifications disabled")
	}

	// Cliente SUNAT y worker de envío asíncrono
	sunatClient := sunat.NewClient(cfg.SUNAT, logger)
	submitter := worker.NewSubmitter(docRepo, companyRepo, attemptRepo, sunatClient, bus, cfg.SUNAT, logger)
	submitter.Start()

	// Validador de bancarización
	validator := compliance.NewValidator(cfg.Compliance.Thresholds, compliance.DefaultPaymentMeans())

	// Servicios
	documentService := services.NewDocumentService(docRepo, companyRepo, clientRepo, attemptRepo, redis, validator, bus, cfg, logger)
	companyService := services.NewCompanyService(companyRepo, apiKeyRepo, logger)
	clientService := services.NewClientService(clientRepo, logger)
	webhookService := services.NewWebhookService(webhookRepo, dispatcher, cfg.Webhook, logger)

	// API
	apiHandler := api.NewAPI(
		documentService,
		companyService,
		clientService,
		webhookService,
		submitter,
		apiKeyRepo,
		validator,
		logger,
	)

	// Configurar router
	router := setupRouter(apiHandler, db, redis, cfg)

	// Crear servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout: 15 * time.Second,
		// Sin WriteTimeout: el envío síncrono a SUNAT puede agotar la
		// política completa de reintentos antes de responder
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Canal para señales de terminación
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Iniciar servidor en goroutine
	go func() {
		logger.Infof("Server starting on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	// Esperar señal de terminación
	<-quit
	logger.Info("Shutting down server...")

	// Contexto con timeout para shutdown graceful
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown graceful: primero el servidor, luego el worker y los webhooks
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	submitter.Stop()
	dispatcher.Wait()

	logger.Info("Server exited")
}

// setupLogger configura el logger según la configuración
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	// Configurar nivel de log
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Configurar formato
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// setupRouter configura el router principal
func setupRouter(apiHandler *api.API, db *database.DB, redis *database.Redis, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Middleware global
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Middleware de CORS para desarrollo
	if cfg.IsDevelopment() {
		router.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key, Idempotency-Key")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(204)
				return
			}

			c.Next()
		})
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "sunat-service",
			"version":   "1.0.0",
		}

		if err := db.HealthCheck(); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "degraded"
			health["database"] = err.Error()
		}
		if err := redis.HealthCheck(); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "degraded"
			health["redis"] = err.Error()
		}

		c.JSON(status, health)
	})

	apiHandler.RegisterRoutes(router)

	return router
}
