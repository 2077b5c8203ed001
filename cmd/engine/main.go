package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/faithtrain/internal/api"
	"github.com/digkill/faithtrain/internal/auth"
	"github.com/digkill/faithtrain/internal/cache"
	"github.com/digkill/faithtrain/internal/config"
	"github.com/digkill/faithtrain/internal/database"
	"github.com/digkill/faithtrain/internal/memstore"
	"github.com/digkill/faithtrain/internal/repository"
	"github.com/digkill/faithtrain/internal/service"
	"github.com/digkill/faithtrain/internal/storage"
	"github.com/digkill/faithtrain/internal/telegram"
	"github.com/digkill/faithtrain/internal/worker"
	"github.com/digkill/faithtrain/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("faithtrain", pflag.ContinueOnError)
	migrateOnly := flags.Bool("migrate-only", false, "apply the MySQL schema and exit")
	featuresPath := flags.String("features", "", "feature policy YAML (overrides FEATURES_PATH)")
	hashPassword := flags.String("hash-password", "", "print the bcrypt hash of a password for ADMIN_PASSWORD_HASH and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("flags: %v", err)
	}

	if *hashPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *featuresPath != "" {
		cfg.FeaturesPath = *featuresPath
	}

	logr := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	clock := clockwork.NewRealClock()
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store service.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logr.Warn("using in-memory store; data is lost on restart")
		store = memstore.New(clock)
	default:
		db, err := database.Connect(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		store = repository.NewStore(db)
	}
	if *migrateOnly {
		logr.Info("schema applied")
		return
	}

	policy, err := config.LoadFeatures(cfg.FeaturesPath)
	if err != nil {
		log.Fatalf("features: %v", err)
	}

	hub := service.NewStateHub()

	var (
		subs        service.SubscriptionReader = store.Subscriptions()
		invalidator service.SubscriptionInvalidator
	)
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		subCache := cache.NewSubscriptionCache(rdb, store.Subscriptions(), cfg.CacheTTL, logr)
		subs, invalidator = subCache, subCache
	}

	boosters := service.NewBoosterManager(store, clock, hub, logr)
	ledger := service.NewPointsLedger(store, boosters, hub, logr)
	streaks := service.NewStreakService(store, boosters, clock, loc, service.StreakPolicy{MultiDayBridge: cfg.StreakMultiDayBridge}, hub, logr)
	svc := api.Services{
		Users:         service.NewUserService(store),
		Streaks:       streaks,
		Ledger:        ledger,
		Boosters:      boosters,
		Catalog:       service.NewCatalogService(store),
		Redemptions:   service.NewRedemptionService(store, ledger, clock, hub, logr),
		Gate:          service.NewEntitlementGate(store, subs, policy, clock, loc, hub, logr),
		Codes:         service.NewCodeService(store, invalidator, cfg.CodePrefix, clock, hub, logr),
		Training:      service.NewTrainingService(store, streaks, ledger, cfg.PointsPerActivity, logr),
		Subscriptions: service.NewSubscriptionService(store, invalidator, clock, hub, logr),
		Preferences:   service.NewPreferenceService(store),
		Hub:           hub,
	}

	if cfg.ArchiveEnabled {
		archive, err := storage.NewLedgerArchive(storage.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("ledger archive: %v", err)
		}
		archiver := worker.NewArchiver(store, archive, clock, loc, logr)
		sched, err := worker.NewScheduler(archiver, cfg.ArchiveAt, clock, loc, logr)
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
		sched.Start()
		defer func() {
			if err := sched.Shutdown(); err != nil {
				logr.Error("scheduler shutdown", "err", err)
			}
		}()
	}

	if cfg.TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		bot := telegram.NewBot(botAPI, logr, telegram.Services{
			Users:       svc.Users,
			Training:    svc.Training,
			Streaks:     svc.Streaks,
			Ledger:      svc.Ledger,
			Catalog:     svc.Catalog,
			Redemptions: svc.Redemptions,
			Boosters:    svc.Boosters,
			Codes:       svc.Codes,
			Gate:        svc.Gate,
		})
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("bot stopped", "err", err)
			}
		}()
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL, clock)
	server := api.NewServer(api.Options{
		Addr:               cfg.ListenAddr,
		AdminUsername:      cfg.AdminUsername,
		AdminPasswordHash:  cfg.AdminPasswordHash,
		RateLimitPerMinute: cfg.RateLimitPerMin,
	}, svc, tokens, logr)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}
