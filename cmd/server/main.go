package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/cfg"
	"github.com/Oniqq60/taskflow/internal/document"
	"github.com/Oniqq60/taskflow/internal/logging"
	"github.com/Oniqq60/taskflow/internal/middleware"
	"github.com/Oniqq60/taskflow/internal/routers"
	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	conf, err := cfg.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(logging.Options{Service: "taskflow", Level: conf.LogLevel, File: conf.LogFile})

	if err := run(conf, logger); err != nil {
		logger.WithError(err).Fatal("taskflow server stopped")
	}
	logger.Info("taskflow server stopped")
}

func run(conf cfg.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(conf.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS must be set")
	}

	db, err := connectDB(conf)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql DB: %w", err)
	}
	defer sqlDB.Close()

	if err := task.RunMigrations(sqlDB, task.MigrationConfig{
		DBName:     conf.DBName,
		MaxRetries: 10,
		RetryDelay: 2 * time.Second,
	}, logger); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: conf.RedisAddr, Password: conf.RedisPassword})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}

	minioStorage, err := document.NewMinioStorage(conf.MinioEndpoint, conf.MinioAccessKey, conf.MinioSecretKey, conf.MinioUseSSL, conf.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to init object storage: %w", err)
	}
	storage := document.NewBreakerStorage(minioStorage, logger)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.MongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.WithError(err).Warn("mongodb disconnect failed")
		}
	}()
	submissions := mongoClient.Database(conf.MongoDatabase).Collection(conf.MongoCollection)
	if err := document.EnsureIndexes(ctx, submissions); err != nil {
		logger.WithError(err).Warn("failed to ensure submission indexes")
	}

	producer := task.NewKafkaProducer(conf.KafkaBrokers, conf.KafkaTopic, logger)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("kafka producer close failed")
		}
	}()

	profiles := auth.NewRepository(db)
	authSvc := auth.NewService(profiles, auth.NewSessionStore(rdb), auth.Options{
		Secret:              []byte(conf.JWTSecret),
		TokenTTL:            conf.JWTTTL,
		BootstrapAdminEmail: conf.BootstrapAdminEmail,
	}, logger.WithField("component", "auth"))

	resolver := auth.NewResolver(profiles, rdb, conf.LookupTimeout, logger.WithField("component", "resolver"))
	go func() {
		if err := resolver.Watch(ctx, authSvc); err != nil {
			logger.WithError(err).Error("profile cache invalidation stopped")
		}
	}()

	taskSvc := task.NewTaskService(task.Dependencies{
		Repo:        task.NewRepository(db),
		Profiles:    resolver,
		Storage:     storage,
		Submissions: document.NewSubmissionLog(submissions),
		Events:      producer,
		Logger:      logger.WithField("component", "lifecycle"),
		MaxFileSize: conf.MaxFileSizeBytes,
	})

	rateLimiter := middleware.NewRateLimiter(conf.RateLimitRequests, conf.RateLimitWindow, logger).
		TrustProxies(conf.TrustedProxies...)
	router, err := routers.New(routers.Dependencies{
		Auth:     authSvc,
		Profiles: resolver,
		Tasks:    taskSvc,
		Logger:   logger.WithField("component", "http"),
		Middleware: []func(http.Handler) http.Handler{
			middleware.SecurityHeaders,
			middleware.NewCORS(middleware.CORSOptions{
				AllowedOrigins:   conf.AllowedCORSOrigins,
				AllowCredentials: true,
			}),
			rateLimiter.Middleware,
		},
		MaxFileSize:  conf.MaxFileSizeBytes,
		SecureCookie: conf.CookieSecure,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + conf.HTTPPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	grpcListener, err := net.Listen("tcp", ":"+conf.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Infof("gRPC health server listening on %s", grpcListener.Addr().String())
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server error")
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown error")
	}
	grpcServer.GracefulStop()
	return runErr
}

func connectDB(conf cfg.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to init sql DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
