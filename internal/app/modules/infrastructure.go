package modules

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/infrastructure"
	"givedesk.io/backoffice/internal/pkg/worker"
	"givedesk.io/backoffice/internal/queue"
	"givedesk.io/backoffice/internal/realtime"
	"givedesk.io/backoffice/internal/store"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config    *config.Config
	DB        *infrastructure.DatabaseClients
	Redis     *redis.Client
	Pools     *worker.Pools
	Queue     *queue.Registry
	Records   *store.NotificationStore
	Directory *store.Directory
	Hub       *realtime.Hub
	// Bridge is nil when Redis is not configured.
	Bridge *realtime.RedisBridge
	// Emitter is the bridge when present, otherwise the local hub.
	Emitter realtime.Emitter
}

// NewInfrastructure connects to PostgreSQL and Redis, migrates, and builds
// the shared pools, queue registry and realtime hub.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx, cfg.Queue.Prefix); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		EventPoolSize:    cfg.Worker.EventPoolSize,
		RealtimePoolSize: cfg.Worker.RealtimePoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	rdb, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	infra := &Infrastructure{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Pools:     pools,
		Queue:     queue.NewRegistry(cfg.Queue, db.Pool, pools),
		Records:   store.NewNotificationStore(db.Pool),
		Directory: store.NewDirectory(db.Pool),
		Hub:       realtime.NewHub(pools),
	}
	infra.Emitter = infra.Hub
	if rdb != nil {
		infra.Bridge = realtime.NewRedisBridge(rdb, infra.Hub, pools, cfg.Queue.Prefix)
		infra.Emitter = infra.Bridge
	}
	return infra, nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Bridge != nil {
		_ = i.Bridge.Close()
	}
	if i.Hub != nil {
		i.Hub.Close()
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
