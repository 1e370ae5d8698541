package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/api"
	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/crypto"
	"github.com/fathima-sithara/realtime-service/internal/discovery"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/memstore"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/storage"
	"github.com/fathima-sithara/realtime-service/internal/utils"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

type stores struct {
	messages service.MessageStore
	profiles service.Profiles
	groups   service.Groups
	alerts   service.Alerts
	calls    service.CallLogs
	close    func(context.Context) error
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := utils.NewLogger(cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	metrics.Init()

	ctx := context.Background()

	codec, err := crypto.NewCodecFromBase64(cfg.Crypto.MessageKey)
	if err != nil {
		logger.Fatal("message key", zap.Error(err))
	}
	validator, err := auth.NewValidator(cfg.JWT.Alg, cfg.JWT.Secret, cfg.JWT.PublicKeyPath)
	if err != nil {
		logger.Fatal("jwt validator", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}
	defer func() { _ = st.close(context.Background()) }()

	// Redis is optional: without it presence stays local and HTTP is not rate limited.
	var (
		rdb     *redis.Client
		dir     *presence.Directory
		mirror  service.PresenceMirror
		lookup  api.PresenceLookup
		limiter *api.RateLimiter
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Pass, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		dir = presence.NewDirectory(rdb, cfg.Redis.Prefix, cfg.App.InstanceID, cfg.PresenceTTL)
		mirror, lookup = dir, dir
		limiter = api.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.Requests, cfg.RateWindow, logger)
		defer func() { _ = rdb.Close() }()
	}

	var sink service.EventSink = events.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = producer.Close() }()
		sink = producer
	}

	var media service.MediaRemover
	if cfg.S3.Bucket != "" {
		cleaner, err := storage.NewS3Cleaner(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Endpoint, logger)
		if err != nil {
			logger.Fatal("s3 init", zap.Error(err))
		}
		media = cleaner
	}

	reg := presence.NewRegistry()
	if dir != nil {
		kctx, stopKeepAlive := context.WithCancel(ctx)
		defer stopKeepAlive()
		go dir.KeepAlive(kctx, reg, func(err error) {
			logger.Warn("presence refresh failed", zap.Error(err))
		})
	}
	svc := service.New(service.Deps{
		Messages:  st.messages,
		Profiles:  st.profiles,
		Groups:    st.groups,
		Alerts:    st.alerts,
		Cipher:    codec,
		Registry:  reg,
		Logger:    logger,
		Media:     media,
		Events:    sink,
		Mirror:    mirror,
		ChatRoute: cfg.App.ChatRoute,
	})
	calls := service.NewCallRelay(reg, st.profiles, st.calls, sink, logger, nil)

	wsServer := ws.NewServer(svc, calls, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendBuffer:     cfg.WS.SendBuffer,
		RatePerSecond:  cfg.WS.RatePerSecond,
		Burst:          cfg.WS.Burst,
	}, logger)

	app := api.NewApp(api.RouterDeps{
		Handler:   api.NewHandler(svc, calls, st.profiles, lookup, cfg.MongoTimeout, logger),
		WS:        wsServer,
		Validator: validator,
		Limiter:   limiter,
		Logger:    logger,
	})

	var registrar *discovery.Registrar
	if cfg.Consul.Addr != "" {
		registrar, err = discovery.NewRegistrar(cfg.Consul.Addr, logger)
		if err != nil {
			logger.Fatal("consul client", zap.Error(err))
		}
		host := cfg.Consul.ServiceHost
		if host == "" {
			host = cfg.App.InstanceID
		}
		if err := registrar.Register(discovery.Registration(cfg.Consul.ServiceName, cfg.App.InstanceID, host, cfg.App.Port)); err != nil {
			logger.Warn("consul register failed", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logger.Info("starting realtime service", zap.String("addr", addr), zap.String("instance", cfg.App.InstanceID))
		errCh <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("shutdown requested", zap.String("signal", sig.String()))
	}

	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			logger.Warn("consul deregister failed", zap.Error(err))
		}
	}
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("shutdown completed")
}

// openStores uses MongoDB when a URI is configured. Development without one
// falls back to in-memory stores.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Mongo.URI == "" {
		logger.Warn("mongo.uri not set, using in-memory stores")
		users := memstore.NewOpenUsers()
		return &stores{
			messages: memstore.NewMessages(),
			profiles: users,
			groups:   users,
			alerts:   memstore.NewAlerts(),
			calls:    memstore.NewCallLogs(),
			close:    func(context.Context) error { return nil },
		}, nil
	}

	client, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.MongoTimeout*3, logger)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.Mongo.Database)
	ictx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	defer cancel()
	if err := repository.EnsureIndexes(ictx, db, cfg.MessageTTL); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	users := repository.NewUserRepository(db)
	return &stores{
		messages: repository.NewMessageRepository(db),
		profiles: users,
		groups:   users,
		alerts:   repository.NewAlertRepository(db),
		calls:    repository.NewCallLogRepository(db),
		close:    client.Disconnect,
	}, nil
}
