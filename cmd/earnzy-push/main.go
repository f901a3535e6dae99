package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/config"
	"github.com/earnzy/earnzy-push/internal/events"
	"github.com/earnzy/earnzy-push/internal/fcm"
	"github.com/earnzy/earnzy-push/internal/imagefetch"
	"github.com/earnzy/earnzy-push/internal/logger"
	"github.com/earnzy/earnzy-push/internal/messaging"
	"github.com/earnzy/earnzy-push/internal/pipeline"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/scheduler"
	"github.com/earnzy/earnzy-push/internal/server"
	"github.com/earnzy/earnzy-push/internal/service"
	"github.com/earnzy/earnzy-push/internal/sideeffect"
	"github.com/earnzy/earnzy-push/internal/storage"
	"github.com/earnzy/earnzy-push/internal/token"
	"github.com/earnzy/earnzy-push/internal/tray"
	"github.com/earnzy/earnzy-push/internal/worker"
)

const (
	messageTimeout   = 30 * time.Second
	rabbitMaxRetries = 10
	rabbitRetryDelay = 3 * time.Second
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var store storage.Store
	switch cfg.DatabaseDriver {
	case "sqlite":
		store, err = storage.NewSQLStore(cfg.DatabaseURL, log)
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.DatabaseURL, log)
	default:
		err = fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}
	if err != nil {
		log.Fatal("Cannot create store", zap.Error(err))
	}

	policy, err := push.ParsePolicy(cfg.Push.Precedence)
	if err != nil {
		log.Fatal("Invalid push precedence", zap.Error(err))
	}
	normalizer := push.NewNormalizer(policy)
	log.Info("Payload precedence policy", zap.String("policy", string(normalizer.Policy())))

	broadcaster := events.NewBroadcaster(32)
	sideEffects := sideeffect.NewDefaultRegistry(log, broadcaster)

	fetcher := imagefetch.NewFetcher(&http.Client{}, cfg.Image.FetchTimeout, cfg.Image.MaxBytes, log)

	channels := tray.NewChannelRegistry(store, log)
	channel := storage.Channel{
		ID:          cfg.Channel.ID,
		Name:        cfg.Channel.Name,
		Description: cfg.Channel.Description,
		Importance:  tray.ImportanceHigh,
	}
	if err := channels.Ensure(context.Background(), channel); err != nil {
		log.Fatal("Cannot create notification channel", zap.Error(err))
	}

	ids, err := tray.NewIDSourceFromStore(context.Background(), store)
	if err != nil {
		log.Fatal("Cannot seed notification ids", zap.Error(err))
	}
	presenter := tray.NewPresenter(channels, store, ids, channel, cfg.Tray.LandingScreen, log)
	notificationPipeline := pipeline.NewNotificationPipeline(normalizer, sideEffects, fetcher, presenter, cfg.Image.FetchTimeout, log)

	workerPool := worker.NewPool(notificationPipeline, cfg.WorkerCount, cfg.JobQueueSize, messageTimeout, log)
	workerPool.Start()

	sweeper := scheduler.New(store, cfg.Tray.MaxActive, cfg.Tray.SweepInterval, log)
	sweeper.Start()

	registrars := []token.Registrar{
		token.NewHTTPRegistrar(&http.Client{Timeout: cfg.Registration.Timeout}, cfg.Registration.URL,
			cfg.Registration.InterServiceSecret, cfg.Registration.Timeout, log),
	}
	if fcmClient := newFCMClient(cfg.FCM, log); fcmClient != nil {
		registrars = append(registrars, fcmClient)
	}
	tokens := token.NewService(store, log, registrars...)

	pushService := service.NewPushService(store, workerPool, tokens)

	var consumer *messaging.Consumer
	var rabbitConn *amqp.Connection
	if cfg.RabbitMQ.URI != "" {
		rabbitConn, err = connectRabbitMQ(cfg.RabbitMQ.URI, log)
		if err != nil {
			log.Fatal("Cannot connect to RabbitMQ", zap.Error(err))
		}
		processor := messaging.NewProcessor(log, pushService, messageTimeout)
		consumer = messaging.NewConsumer(rabbitConn, log, cfg.RabbitMQ.QueueName, cfg.RabbitMQ.Concurrency, processor)
		go func() {
			if err := consumer.Start(); err != nil {
				log.Error("RabbitMQ consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("RabbitMQ disabled: RABBITMQ_URI not configured")
	}

	httpServer := server.New(pushService, broadcaster, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Could not start server", zap.Error(err))
		}
	}()
	<-ctx.Done()

	log.Info("Shutdown signal received, stopping app")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if consumer != nil {
		consumer.Stop()
	}
	if rabbitConn != nil {
		_ = rabbitConn.Close()
	}

	sweeper.Stop()
	workerPool.Stop()

	if err := store.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}

	log.Info("Server exiting")
}

// newFCMClient returns nil when topic subscription is not configured or the
// credentials cannot be used.
func newFCMClient(cfg config.FCMConfig, log *zap.Logger) *fcm.Client {
	if cfg.CredentialsPath == "" || cfg.Topic == "" {
		log.Info("FCM topic subscription disabled: FCM_CREDENTIALS_PATH or FCM_TOPIC not configured")
		return nil
	}

	serviceAccountBytes, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		log.Warn("FCM topic subscription disabled: cannot read service account", zap.Error(err))
		return nil
	}

	client, err := fcm.NewClient(context.Background(), serviceAccountBytes, cfg.Topic, log)
	if err != nil {
		log.Warn("FCM topic subscription disabled: cannot create client", zap.Error(err))
		return nil
	}

	log.Info("FCM topic subscription enabled", zap.String("topic", cfg.Topic))
	return client
}

func connectRabbitMQ(uri string, log *zap.Logger) (*amqp.Connection, error) {
	var err error
	for i := 0; i < rabbitMaxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(uri)
		if err == nil {
			log.Info("Connected to RabbitMQ")
			go func() {
				closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
				if closeErr != nil {
					log.Error("RabbitMQ connection lost", zap.Error(closeErr))
				}
			}()
			return conn, nil
		}
		log.Warn("Cannot connect to RabbitMQ, retrying",
			zap.Error(err),
			zap.Int("retry", i+1),
			zap.Duration("delay", rabbitRetryDelay))
		time.Sleep(rabbitRetryDelay)
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", rabbitMaxRetries, err)
}
