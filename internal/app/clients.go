package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/plansync-backend/internal/db"
	"github.com/yungbote/plansync-backend/internal/events"
	"github.com/yungbote/plansync-backend/internal/index"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/platform/neo4jdb"
	"github.com/yungbote/plansync-backend/internal/platform/redisdb"
)

type Clients struct {
	Redis  *goredis.Client
	Stream events.Stream
	Index  index.Backend

	closers []func(context.Context) error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	// Redis
	rdb, err := redisdb.New(ctx, log, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	c.Redis = rdb
	c.onClose(func(context.Context) error { return rdb.Close() })

	// Events
	switch cfg.Events.Backend {
	case EventsAMQP:
		c.Stream = events.NewAMQPStream(log, cfg.Events.AMQP)
	default:
		c.Stream = events.NewRedisStream(log, rdb, cfg.Events.Redis)
	}
	stream := c.Stream
	c.onClose(func(context.Context) error { return stream.Close() })

	// Index
	backend, err := c.wireIndex(ctx, log, cfg.Index)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Index = backend
	c.onClose(backend.Close)

	if err := backend.EnsureSchema(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("ensure %s index schema: %w", backend.Name(), err)
	}
	log.Info("Index backend ready", "backend", backend.Name())
	return c, nil
}

func (c *Clients) wireIndex(ctx context.Context, log *logger.Logger, cfg IndexConfig) (index.Backend, error) {
	switch cfg.Backend {
	case IndexNeo4j:
		client, err := neo4jdb.New(ctx, log, cfg.Neo4j)
		if err != nil {
			return nil, fmt.Errorf("init neo4j: %w", err)
		}
		c.onClose(client.Close)
		return index.NewNeo4jBackend(log, client, cfg.Name), nil
	case IndexPostgres, IndexSQLite:
		open := func() (*gorm.DB, error) { return db.OpenPostgres(log, cfg.Postgres) }
		if cfg.Backend == IndexSQLite {
			open = func() (*gorm.DB, error) { return db.OpenSQLite(log, cfg.SQLitePath) }
		}
		gdb, err := open()
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return db.Close(gdb) })
		return index.NewGormBackend(log, gdb, ""), nil
	default:
		es := cfg.Elastic
		es.Index = cfg.Name
		return index.NewElasticBackend(log, es)
	}
}

func (c *Clients) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases clients in reverse order of creation.
func (c *Clients) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
