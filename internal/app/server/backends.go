package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gomongo "go.mongodb.org/mongo-driver/mongo"

	"hrportal/internal/domain/identity"
	"hrportal/internal/domain/session"
	"hrportal/internal/platform/config"
	"hrportal/internal/platform/crypto"
	"hrportal/internal/platform/db"
	"hrportal/internal/platform/mongo"
	"hrportal/internal/platform/redis"
)

type backends struct {
	store    session.SnapshotStore
	exchange session.CredentialExchange
	sealer   session.Sealer

	pool  *pgxpool.Pool
	redis *goredis.Client
	mongo *gomongo.Client
}

func openBackends(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}
	opened := false
	defer func() {
		if !opened {
			b.close(context.Background())
		}
	}()

	cryptoSvc, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}
	if cryptoSvc.Configured() {
		b.sealer = cryptoSvc.WithLabel(crypto.LabelSessionSnapshot)
	} else {
		logger.Warn().Msg("DATA_ENCRYPTION_KEY not set, session snapshots are stored unsealed")
	}

	if cfg.NeedsDatabase() {
		if b.pool, err = OpenDatabase(ctx, cfg.Database, logger); err != nil {
			return nil, err
		}
	}

	if b.store, err = b.openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if b.exchange, err = b.openExchange(cfg, cryptoSvc, logger); err != nil {
		return nil, err
	}
	opened = true
	return b, nil
}

// OpenDatabase connects and, as configured, migrates and seeds.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info().Strs("versions", applied).Msg("migrations applied")
		}
	}
	if cfg.RunSeed {
		created, err := db.Seed(ctx, pool, cfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if created {
			logger.Info().Str("email", cfg.SeedAdminEmail).Msg("seed administrator created")
		}
	}
	return pool, nil
}

func (b *backends) openStore(ctx context.Context, cfg config.Config) (session.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case config.BackendMemory:
		return session.NewMemoryStore(), nil
	case config.BackendFile:
		return session.NewFileStore(cfg.Snapshot.Dir)
	case config.BackendRedis:
		client, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password})
		if err != nil {
			return nil, err
		}
		b.redis = client
		return session.NewRedisStore(client, cfg.Snapshot.KeyPrefix, cfg.Snapshot.TTL), nil
	case config.BackendPostgres:
		return session.NewPostgresStore(b.pool), nil
	case config.BackendMongo:
		client, database, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		b.mongo = client
		return session.NewMongoStore(database), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func (b *backends) openExchange(cfg config.Config, cryptoSvc *crypto.Service, logger zerolog.Logger) (session.CredentialExchange, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeDemo:
		logger.Warn().Strs("elevated", cfg.Auth.DemoElevatedEmails).Msg("demo credential exchange accepts any password")
		return identity.NewDemoExchange(cfg.Auth.DemoElevatedEmails, cfg.Auth.DemoLatency), nil
	case config.AuthModeFile:
		return identity.LoadFileDirectory(cfg.Auth.AccountsFile)
	case config.AuthModePostgres:
		var sealer session.Sealer
		if cryptoSvc.Configured() {
			sealer = cryptoSvc.WithLabel(crypto.LabelMFASecret)
		}
		return identity.NewPostgresDirectory(b.pool, sealer, logger.With().Str("component", "directory").Logger()), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func (b *backends) ping(ctx context.Context) error {
	var errs []error
	if pinger, ok := b.store.(session.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("snapshot store: %w", err))
		}
	}
	if b.pool != nil {
		if err := b.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (b *backends) close(ctx context.Context) {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.mongo != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = b.mongo.Disconnect(closeCtx)
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
