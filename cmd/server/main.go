package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/vanchien08/thunderchat/internal/api"
	"github.com/vanchien08/thunderchat/internal/auth"
	"github.com/vanchien08/thunderchat/internal/cache"
	"github.com/vanchien08/thunderchat/internal/config"
	"github.com/vanchien08/thunderchat/internal/dedup"
	"github.com/vanchien08/thunderchat/internal/fanout"
	"github.com/vanchien08/thunderchat/internal/keyring"
	"github.com/vanchien08/thunderchat/internal/push"
	"github.com/vanchien08/thunderchat/internal/registry"
	"github.com/vanchien08/thunderchat/internal/repository"
	"github.com/vanchien08/thunderchat/internal/search"
	"github.com/vanchien08/thunderchat/internal/service"
	"github.com/vanchien08/thunderchat/internal/ws"
	"github.com/vanchien08/thunderchat/pkg/logger"
)

// memberResolver answers scope membership questions for the connection
// registry from the chat collections.
type memberResolver struct {
	directs *repository.DirectChatRepo
	groups  *repository.GroupChatRepo
}

func (m *memberResolver) DirectChatMembers(ctx context.Context, chatID string) ([]string, error) {
	return m.directs.Members(ctx, chatID)
}

func (m *memberResolver) GroupChatMembers(ctx context.Context, chatID string) ([]string, error) {
	return m.groups.MemberIDs(ctx, chatID)
}

// livePresence consults the shared redis presence cache and falls back
// to local registry state when redis is unreachable.
type livePresence struct {
	cache *cache.Client
	reg   *registry.Registry
}

func (p *livePresence) IsOnline(userID string) bool {
	online, err := p.cache.IsOnline(context.Background(), userID)
	if err != nil {
		return p.reg.IsOnline(userID)
	}
	return online
}

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	mc, err := repository.NewMongoClient(cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.Database)

	msgRepo := repository.NewMessageRepo(db, zlog)
	seqRepo := repository.NewSequenceRepo(db)
	directRepo := repository.NewDirectChatRepo(db)
	groupRepo := repository.NewGroupChatRepo(db)
	pinRepo := repository.NewPinRepo(db, zlog)
	pushRepo := repository.NewPushEndpointRepo(db)
	lookupRepo := repository.NewLookupRepo(db)
	envRepo := repository.NewKeyEnvelopeRepo(db)

	ring, err := bootstrapKeyring(cfg, envRepo)
	if err != nil {
		zlog.Fatalw("keyring init", "err", err)
	}

	presence := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	defer presence.Close()
	if err := presence.Ping(context.Background()); err != nil {
		zlog.Warnw("redis unreachable, presence degraded", "err", err)
	}

	reg := registry.New(&memberResolver{directs: directRepo, groups: groupRepo}, zlog)

	guard := dedup.NewGuard(cfg.DedupTTL)
	defer guard.Close()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.IndexTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()
	relay := search.NewRelay(writer, 1024, time.Minute, zlog)

	dispatcher := push.NewDispatcher(pushRepo, cfg.PushTimeout, zlog)

	msgSvc := service.NewMessageService(msgRepo, seqRepo, directRepo, groupRepo, lookupRepo, ring, zlog)
	statusSvc := service.NewStatusService(msgRepo, pinRepo, directRepo, groupRepo, reg, cfg.Pin.SinglePerScope, zlog)

	router := fanout.NewRouter(reg, &livePresence{cache: presence, reg: reg}, dispatcher, directRepo, groupRepo, cfg.Push.AlwaysKinds, zlog)
	pipeline := fanout.NewPipeline(msgSvc, router, relay)

	jv := auth.NewJWTValidator(cfg.JWT.Secret)
	wsrv := ws.NewServer(reg, guard, pipeline, statusSvc, presence, directRepo, jv, cfg.Server.WSEventsPerSecond, zlog)

	handler := api.NewHandler(pipeline, msgSvc, statusSvc, groupRepo, dispatcher, pushRepo, relay, zlog)
	app := api.NewServer(handler, wsrv)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()
	zlog.Infow("server started", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	// Drain queued index documents before the kafka writer closes.
	relay.Close()
	zlog.Infow("server stopped")
}

// bootstrapKeyring opens the persisted key envelope, or mints and
// persists a fresh ring on first start.
func bootstrapKeyring(cfg *config.Config, envRepo *repository.KeyEnvelopeRepo) (*keyring.Ring, error) {
	master, err := cfg.MasterKey()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env, err := envRepo.Load(ctx)
	if err == nil {
		return keyring.Open(master, env)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ring, err := keyring.NewRing(master)
	if err != nil {
		return nil, err
	}
	env, err = ring.Seal()
	if err != nil {
		return nil, err
	}
	if err := envRepo.Save(ctx, env); err != nil {
		return nil, err
	}
	return ring, nil
}
