package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/plansync-backend/internal/db"
	"github.com/yungbote/plansync-backend/internal/events"
	"github.com/yungbote/plansync-backend/internal/index"
	"github.com/yungbote/plansync-backend/internal/observability"
	"github.com/yungbote/plansync-backend/internal/platform/envutil"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/platform/neo4jdb"
	"github.com/yungbote/plansync-backend/internal/platform/redisdb"
	"github.com/yungbote/plansync-backend/internal/services"
)

const (
	EventsRedis = "redis"
	EventsAMQP  = "amqp"

	IndexElasticsearch = "elasticsearch"
	IndexNeo4j         = "neo4j"
	IndexPostgres      = "postgres"
	IndexSQLite        = "sqlite"
)

type EventsConfig struct {
	Backend       string                   `yaml:"backend"`
	MaxDeliveries int64                    `yaml:"max_deliveries"`
	Redis         events.RedisStreamConfig `yaml:"redis"`
	AMQP          events.AMQPConfig        `yaml:"amqp"`
}

type IndexConfig struct {
	Backend    string              `yaml:"backend"`
	Name       string              `yaml:"name"`
	Elastic    index.ElasticConfig `yaml:"elasticsearch"`
	Neo4j      neo4jdb.Config      `yaml:"neo4j"`
	Postgres   db.PostgresConfig   `yaml:"postgres"`
	SQLitePath string              `yaml:"sqlite_path"`
}

type Config struct {
	Port               string                   `yaml:"port"`
	ShutdownTimeout    time.Duration            `yaml:"shutdown_timeout"`
	CORSOrigins        []string                 `yaml:"cors_origins"`
	ReindexConcurrency int                      `yaml:"reindex_concurrency"`
	Redis              redisdb.Config           `yaml:"redis"`
	PlanKeyPrefix      string                   `yaml:"plan_key_prefix"`
	Events             EventsConfig             `yaml:"events"`
	Index              IndexConfig              `yaml:"index"`
	Identity           services.IdentityConfig  `yaml:"identity"`
	Otel               observability.OtelConfig `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		Port:               "8080",
		ShutdownTimeout:    15 * time.Second,
		ReindexConcurrency: 4,
		Redis:              redisdb.Config{Addr: "127.0.0.1:6379"},
		PlanKeyPrefix:      "plan:",
		Events: EventsConfig{
			Backend:       EventsRedis,
			MaxDeliveries: 5,
			Redis: events.RedisStreamConfig{
				Stream:       "planQueue",
				Group:        "plan-indexer",
				Consumer:     "indexer-1",
				RetryBackoff: time.Second,
			},
			AMQP: events.AMQPConfig{
				URL:          "amqp://localhost",
				Queue:        "planQueue",
				RetryBackoff: time.Second,
			},
		},
		Index: IndexConfig{
			Backend:    IndexElasticsearch,
			Name:       "plans",
			Elastic:    index.ElasticConfig{Addresses: []string{"http://localhost:9200"}},
			Neo4j:      neo4jdb.Config{URI: "neo4j://localhost:7687", User: "neo4j"},
			Postgres:   db.PostgresConfig{Host: "localhost", Port: "5432", User: "postgres", Name: "plansync"},
			SQLitePath: "plansync-index.db",
		},
		Identity: services.IdentityConfig{Mode: services.AuthModeGoogle},
		Otel:     observability.OtelConfig{ServiceName: "plansync", SampleRatio: 0.1},
	}
}

// LoadConfig layers defaults, the optional CONFIG_FILE yaml, then the
// environment, in that order.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}
	applyEnv(&cfg, log)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, log *logger.Logger) {
	cfg.Port = envutil.String("PORT", cfg.Port, log)
	cfg.ShutdownTimeout = envutil.Duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, log)
	cfg.ReindexConcurrency = envutil.Int("REINDEX_CONCURRENCY", cfg.ReindexConcurrency, log)
	if origins := envutil.String("CORS_ORIGINS", "", log); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	// Redis
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr, log)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password, log)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB, log)
	cfg.PlanKeyPrefix = envutil.String("REDIS_KEY_PREFIX", cfg.PlanKeyPrefix, log)

	// Events
	ev := &cfg.Events
	ev.Backend = strings.ToLower(envutil.String("EVENTS_BACKEND", ev.Backend, log))
	ev.MaxDeliveries = int64(envutil.Int("EVENTS_MAX_DELIVERIES", int(ev.MaxDeliveries), log))
	ev.Redis.Stream = envutil.String("EVENTS_STREAM", ev.Redis.Stream, log)
	ev.Redis.Group = envutil.String("EVENTS_GROUP", ev.Redis.Group, log)
	ev.Redis.Consumer = envutil.String("EVENTS_CONSUMER", ev.Redis.Consumer, log)
	ev.Redis.RetryBackoff = envutil.Duration("EVENTS_RETRY_BACKOFF", ev.Redis.RetryBackoff, log)
	ev.Redis.ClaimMinIdle = envutil.Duration("EVENTS_CLAIM_MIN_IDLE", ev.Redis.ClaimMinIdle, log)
	ev.AMQP.URL = envutil.String("AMQP_URL", ev.AMQP.URL, log)
	ev.AMQP.Queue = envutil.String("EVENTS_STREAM", ev.AMQP.Queue, log)
	ev.AMQP.RetryBackoff = envutil.Duration("EVENTS_RETRY_BACKOFF", ev.AMQP.RetryBackoff, log)

	// Index
	ix := &cfg.Index
	ix.Backend = strings.ToLower(envutil.String("INDEX_BACKEND", ix.Backend, log))
	ix.Name = envutil.String("INDEX_NAME", ix.Name, log)
	if addrs := envutil.String("ELASTICSEARCH_URL", "", log); addrs != "" {
		ix.Elastic.Addresses = splitList(addrs)
	}
	ix.Elastic.Username = envutil.String("ELASTICSEARCH_USERNAME", ix.Elastic.Username, log)
	ix.Elastic.Password = envutil.String("ELASTICSEARCH_PASSWORD", ix.Elastic.Password, log)
	ix.Neo4j.URI = envutil.String("NEO4J_URI", ix.Neo4j.URI, log)
	ix.Neo4j.User = envutil.String("NEO4J_USER", ix.Neo4j.User, log)
	ix.Neo4j.Password = envutil.String("NEO4J_PASSWORD", ix.Neo4j.Password, log)
	ix.Neo4j.Database = envutil.String("NEO4J_DATABASE", ix.Neo4j.Database, log)
	ix.Neo4j.Timeout = envutil.Duration("NEO4J_TIMEOUT", ix.Neo4j.Timeout, log)
	ix.Postgres.Host = envutil.String("POSTGRES_HOST", ix.Postgres.Host, log)
	ix.Postgres.Port = envutil.String("POSTGRES_PORT", ix.Postgres.Port, log)
	ix.Postgres.User = envutil.String("POSTGRES_USER", ix.Postgres.User, log)
	ix.Postgres.Password = envutil.String("POSTGRES_PASSWORD", ix.Postgres.Password, log)
	ix.Postgres.Name = envutil.String("POSTGRES_NAME", ix.Postgres.Name, log)
	ix.Postgres.SSLMode = envutil.String("POSTGRES_SSLMODE", ix.Postgres.SSLMode, log)
	ix.SQLitePath = envutil.String("SQLITE_PATH", ix.SQLitePath, log)

	// Identity
	cfg.Identity.Mode = strings.ToLower(envutil.String("AUTH_MODE", cfg.Identity.Mode, log))
	cfg.Identity.Secret = envutil.String("JWT_SECRET_KEY", cfg.Identity.Secret, log)
	cfg.Identity.Audience = envutil.String("GOOGLE_OIDC_CLIENT_ID", cfg.Identity.Audience, log)
	cfg.Identity.JWKSURL = envutil.String("GOOGLE_JWKS_URL", cfg.Identity.JWKSURL, log)

	// Tracing
	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled, log)
	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName, log)
	cfg.Otel.Environment = envutil.String("APP_ENV", cfg.Otel.Environment, log)
	cfg.Otel.Version = envutil.String("APP_VERSION", cfg.Otel.Version, log)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint, log)
	cfg.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.Otel.Headers, log)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure, log)
	cfg.Otel.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Otel.SampleRatio, log)
}

func (c Config) validate() error {
	switch c.Events.Backend {
	case EventsRedis, EventsAMQP:
	default:
		return fmt.Errorf("unknown EVENTS_BACKEND %q", c.Events.Backend)
	}
	switch c.Index.Backend {
	case IndexElasticsearch, IndexNeo4j, IndexPostgres, IndexSQLite:
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", c.Index.Backend)
	}
	switch c.Identity.Mode {
	case services.AuthModeGoogle, services.AuthModeHMAC, services.AuthModeNone:
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.Identity.Mode)
	}
	if c.Events.MaxDeliveries < 0 {
		return fmt.Errorf("EVENTS_MAX_DELIVERIES must be >= 0")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
