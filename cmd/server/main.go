package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mesikahq/clinic-records/internal/api"
	"github.com/mesikahq/clinic-records/internal/appointment"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/auth"
	"github.com/mesikahq/clinic-records/internal/clinic"
	"github.com/mesikahq/clinic-records/internal/clinical"
	"github.com/mesikahq/clinic-records/internal/config"
	"github.com/mesikahq/clinic-records/internal/database"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/encryption"
	"github.com/mesikahq/clinic-records/internal/events"
	"github.com/mesikahq/clinic-records/internal/exam"
	"github.com/mesikahq/clinic-records/internal/history"
	"github.com/mesikahq/clinic-records/internal/notification"
	"github.com/mesikahq/clinic-records/internal/patient"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	gin.SetMode(cfg.Server.Mode)

	ctx := context.Background()
	db, err := database.Connect(ctx, database.PostgresConfigFrom(cfg.Database))
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer database.Disconnect(db)

	if cfg.Security.EncryptionKey == "" {
		logger.Warn("security.encryption_key is not set, using a random key; encrypted fields will not survive a restart")
	}
	crypto, err := encryption.NewService(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize encryption service", zap.Error(err))
	}

	var esClient *elasticsearch.Client
	if cfg.Elasticsearch.Enabled {
		esClient, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Elasticsearch", zap.Error(err))
		}
	} else {
		logger.Info("Elasticsearch disabled, audit events are only logged")
	}
	auditService := audit.NewService(esClient, cfg.Elasticsearch.IndexPrefix)

	notifications := notification.Disabled()
	if cfg.Mongo.Enabled {
		client, err := database.NewMongoClient(ctx, database.MongoConfigFrom(cfg.Mongo))
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())

		mongoDB := client.Database(cfg.Mongo.Database)
		if err := notification.EnsureIndexes(ctx, mongoDB); err != nil {
			logger.Fatal("Failed to create notification indexes", zap.Error(err))
		}
		notifications = notification.NewService(notification.NewMongoStore(mongoDB))
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("Failed to create Kafka publisher", zap.Error(err))
		}
		publisher = kp
		logger.Info("Publishing appointment events to Kafka", zap.String("topic", kp.Topic()))
	}
	defer publisher.Close()

	patientService := patient.NewService(db, auditService)
	doctorService := doctor.NewService(db, auditService)
	directoryService := directory.NewService(db)

	authService := auth.NewService(
		auth.NewPostgresUserStore(db),
		patientService,
		doctorService,
		auditService,
		auth.ServiceConfig{
			JWTSecret:   cfg.Auth.JWTSecret,
			TokenExpiry: cfg.Auth.TokenExpiry,
		},
	)

	appointmentService := appointment.NewService(
		appointment.NewPostgresRepository(db),
		patientService,
		doctorService,
		auditService,
		appointment.Config{
			SlotLength:           cfg.Appointments.SlotLength(),
			StrictTransitions:    cfg.Appointments.StrictTransitions,
			PreventDoubleBooking: cfg.Appointments.PreventDoubleBooking,
			StrictOwnership:      cfg.Appointments.StrictOwnership,
		},
	)

	handler := api.NewHandler(api.Services{
		Auth:          authService,
		Patients:      patientService,
		Doctors:       doctorService,
		Appointments:  appointmentService,
		History:       history.NewService(history.NewPostgresStore(db), auditService),
		Clinical:      clinical.NewService(clinical.NewPostgresStore(db), patientService, crypto, auditService),
		Exams:         exam.NewService(exam.NewPostgresStore(db), auditService),
		Clinic:        clinic.NewService(clinic.NewPostgresStore(db), auditService),
		Notifications: notifications,
		Audit:         auditService,
		Events:        publisher,
	}, logger, api.HandlerConfig{
		SlotLength: cfg.Appointments.SlotLength(),
	})

	router := api.NewRouter(handler, auth.NewMiddleware(authService, directoryService), api.RouterConfig{
		RateLimitRPS:   cfg.Security.RateLimitRPS,
		RateLimitBurst: cfg.Security.RateLimitBurst,
		Timeout:        cfg.Server.Timeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})
	engine := router.SetupRouter(logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", addr), zap.Bool("tls", cfg.Server.TLS.Enabled))
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == gin.DebugMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
