package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/niksbanna/ehr-portal-sub000/internal/platform/config"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/postgres"
	platformredis "github.com/niksbanna/ehr-portal-sub000/internal/platform/redis"
	"github.com/niksbanna/ehr-portal-sub000/internal/revocation"
	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	kafkasink "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/sink/kafka"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/store/memory"
	auditpg "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/store/postgres"
)

const (
	kafkaPartitions  = 3
	kafkaReplication = 1
)

// infra holds the external connections the configured backends need.
type infra struct {
	pool  *pgxpool.Pool
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}

	if cfg.Audit.Store == config.BackendPostgres || cfg.Revocation.Backend == config.BackendPostgres {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		in.pool = pool
		if cfg.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				in.close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			log.Info("database migrations applied")
		}
	}

	if cfg.Revocation.Backend == config.BackendPostgres {
		db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("open revocation database: %w", err)
		}
		in.db = db
	}

	if cfg.Revocation.Backend == config.BackendRedis {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.redis = client
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		client, err := kafkasink.NewClient(cfg.Audit.KafkaBrokers)
		if err != nil {
			in.close()
			return nil, err
		}
		in.kafka = client
	}

	return in, nil
}

func (in *infra) close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
	if in.pool != nil {
		in.pool.Close()
	}
}

func buildRevocationCache(cfg *config.Config, in *infra) (revocation.Cache, error) {
	switch cfg.Revocation.Backend {
	case config.BackendMemory:
		return revocation.NewMemoryCache(), nil
	case config.BackendRedis:
		return revocation.NewRedisCache(in.redis.Client), nil
	case config.BackendPostgres:
		return revocation.NewPostgresCache(in.db), nil
	default:
		return nil, fmt.Errorf("unknown revocation backend %q", cfg.Revocation.Backend)
	}
}

func buildAuditStore(cfg *config.Config, in *infra) audit.Store {
	if cfg.Audit.Store == config.BackendPostgres {
		return auditpg.New(in.pool)
	}
	return memory.NewInMemoryStore()
}

// buildAppender mirrors records to Kafka when brokers are configured. The
// mirror is best effort; only the store decides whether a write failed.
func buildAppender(ctx context.Context, cfg *config.Config, store audit.Store, in *infra, log *slog.Logger) audit.Appender {
	if in.kafka == nil {
		return store
	}
	if err := kafkasink.EnsureTopic(ctx, in.kafka, cfg.Audit.KafkaTopic, kafkaPartitions, kafkaReplication); err != nil {
		log.Warn("audit topic not provisioned", "topic", cfg.Audit.KafkaTopic, "error", err)
	}
	return audit.Tee(store, log, kafkasink.New(in.kafka, cfg.Audit.KafkaTopic))
}
