package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"geomet-mapfile/internal/common/aws"
	"geomet-mapfile/internal/common/config"
	"geomet-mapfile/internal/common/database"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/store"
	"geomet-mapfile/internal/mapfile/engine"
)

// app holds what every subcommand shares. Built per command run so that
// --help and flag errors never touch Redis.
type app struct {
	cfg    *config.Config
	zap    *zap.Logger
	log    logger.Logger
	redis  *database.RedisClient
	store  *store.RedisStore
	engine *engine.Engine
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.NewZapAdapter(zapLog)

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return nil, err
	}
	st := store.NewRedisStore(rdb, cfg.Mapfile.Namespace, cfg.App.Version, log)

	deps := engine.Dependencies{Store: st, Logger: log}
	if sns := cfg.Notifications.SNS; sns.Enabled {
		client, err := aws.NewSNSClient(ctx, sns.Region, sns.TopicARN)
		if err != nil {
			log.Warn("SNS notifications disabled", map[string]interface{}{"error": err.Error()})
		} else {
			deps.Notifier = client
		}
	}

	return &app{
		cfg:    cfg,
		zap:    zapLog,
		log:    log,
		redis:  rdb,
		store:  st,
		engine: engine.New(cfg, deps),
	}, nil
}

// timeout bounds one command run by mapfile.timeout.
func (a *app) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, config.GetDuration(a.cfg.Mapfile.Timeout))
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.zap.Sync()
}

// downloadTimeout is the HTTP client timeout of metadata setup.
const downloadTimeout = 2 * time.Minute
