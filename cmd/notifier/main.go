package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/cfg"
	"github.com/Oniqq60/taskflow/internal/logging"
	"github.com/Oniqq60/taskflow/internal/notification"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	conf := cfg.LoadNotifier()
	logger := logging.New(logging.Options{Service: "taskflow-notifier", Level: conf.LogLevel, File: conf.LogFile})

	if err := run(conf, logger); err != nil {
		logger.WithError(err).Fatal("notifier stopped")
	}
	logger.Info("notifier stopped")
}

func run(conf cfg.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(conf.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS must be set")
	}

	conn, err := grpc.NewClient(conf.TaskServerGRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create task server client: %w", err)
	}
	defer conn.Close()

	// схема и топик создаются сервером задач
	if err := notification.WaitForServing(ctx, conn, 2*time.Second, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("task server never became ready: %w", err)
	}

	db, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to init sql DB: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(5)

	// профили читаются напрямую из postgres, кэш redis нужен только серверу
	resolver := auth.NewResolver(auth.NewRepository(db), nil, conf.LookupTimeout, logger.WithField("component", "resolver"))
	handler := notification.NewEventHandler(notification.NewLogNotifier(logger), resolver, logger)
	consumer := notification.NewKafkaConsumer(conf.KafkaBrokers, conf.KafkaTopic, conf.KafkaGroupID, handler, logger)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.WithError(err).Warn("kafka consumer close failed")
		}
	}()

	logger.WithFields(logrus.Fields{"topic": conf.KafkaTopic, "group": conf.KafkaGroupID}).Info("kafka consumer subscribing")
	return consumer.Start(ctx)
}
