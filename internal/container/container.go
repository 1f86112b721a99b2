package container

import (
	"context"
	"fmt"

	"storefront/catalog/internal/client"
	"storefront/catalog/internal/config"
	"storefront/catalog/internal/queue"
	"storefront/catalog/internal/repository"
	"storefront/catalog/internal/resolver"
	"storefront/catalog/internal/search"
	"storefront/catalog/internal/server"
	"storefront/catalog/internal/service"
	"storefront/catalog/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds the components of the storefront API process
type Container struct {
	Config     *config.Config
	Client     client.CatalogClient
	Resolver   *resolver.Resolver
	Index      search.Index
	Storefront *service.StorefrontService
	Server     *server.Server
}

// New wires the storefront API. It needs only the upstream and the search
// index, never Postgres or Redis.
func New(cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	catalogClient := client.NewCatalogClient(cfg.Upstream, cfg.Cache)
	container.Client = catalogClient

	container.Resolver = resolver.New(catalogClient)

	index, err := search.NewElasticsearchIndex(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize search index: %w", err)
	}
	container.Index = index

	container.Storefront = service.NewStorefrontService(catalogClient, container.Resolver)
	container.Server = server.New(catalogClient, container.Resolver, container.Storefront, index, cfg.Search.Limit)

	return container, nil
}

// Run serves the API until ctx is cancelled.
func (c *Container) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Server.Listen(fmt.Sprintf("%s:%d", c.Config.Server.Host, c.Config.Server.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down storefront API...")
		return c.Server.Shutdown(context.Background())
	}
}

// ReindexContainer holds the components of the reindex process
type ReindexContainer struct {
	Config       *config.Config
	Client       client.CatalogClient
	Index        search.Index
	Repository   repository.IndexedProductRepository
	Queue        queue.Queue
	StateManager state.StateManager

	Service *service.ReindexService

	db    *pgxpool.Pool
	redis *redis.Client
}

// NewReindex wires the reindex pipeline and checks its backing stores.
func NewReindex(ctx context.Context, cfg *config.Config) (*ReindexContainer, error) {
	container := &ReindexContainer{
		Config: cfg,
	}

	db, err := pgxpool.New(ctx,
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Name,
		))
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	container.db = db

	repo := repository.NewIndexedProductRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	container.Repository = repo

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	container.redis = rdb

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Redis)
	if err != nil {
		container.Close()
		return nil, err
	}
	container.Queue = redisQueue
	container.StateManager = state.NewRedisStateManager(rdb)

	// Reindex reads must see current data, so the response cache stays off
	cacheCfg := cfg.Cache
	cacheCfg.Enabled = false
	container.Client = client.NewCatalogClient(cfg.Upstream, cacheCfg)

	index, err := search.NewElasticsearchIndex(cfg.Search)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize search index: %w", err)
	}
	container.Index = index

	container.Service = service.NewReindexService(
		container.Client,
		index,
		redisQueue,
		container.StateManager,
		repo,
		cfg.Reindex,
		cfg.Upstream.MediaOrigin(),
		cfg.Redis.MinIdleTime,
	)

	return container, nil
}

// Run enqueues a fresh run and works the queues until they drain.
func (c *ReindexContainer) Run(ctx context.Context) error {
	runID, err := c.Service.Enqueue(ctx)
	if err != nil {
		return err
	}
	log.Infof("🔄 Reindex run %s queued", runID)

	return c.Service.RunWorkers(ctx)
}

// Close performs cleanup when shutting down
func (c *ReindexContainer) Close() error {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
