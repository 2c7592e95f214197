package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/file-ingest-backend/internal/conf"
	ingestdata "github.com/lk2023060901/file-ingest-backend/internal/ingest/data"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/database"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-ingest-backend/internal/pkg/minio"
	pkgredis "github.com/lk2023060901/file-ingest-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data holds the shared backing stores. Redis and MinIO are nil when disabled.
type Data struct {
	DB          *database.DB
	RedisClient *pkgredis.Client
	MinIOClient *pkgminio.Client
	Logger      *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := db.AutoMigrate(&ingestdata.ArtifactPO{}); err != nil {
		db.Close()
		return nil, nil, err
	}

	d := &Data{DB: db, Logger: log}

	if config.Redis.Enabled {
		d.RedisClient, err = pkgredis.New(&config.Redis, log)
		if err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	} else {
		log.Info("redis disabled, purge queue falls back to the local janitor sweep")
	}

	if config.MinIO.Enabled {
		d.MinIOClient, err = initMinIO(&config.MinIO, log)
		if err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
	}

	cleanup := func() {
		log.Info("cleaning up data resources")
		d.close()
	}

	return d, cleanup, nil
}

func initMinIO(cfg *pkgminio.Config, log *logger.Logger) (*pkgminio.Client, error) {
	client, err := pkgminio.NewClient(cfg, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.EnsureBucket(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (d *Data) close() {
	if d.MinIOClient != nil {
		d.MinIOClient.Close()
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			d.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

// HealthCheck pings every enabled store.
func (d *Data) HealthCheck(ctx context.Context) error {
	if err := d.DB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.MinIOClient != nil {
		if err := d.MinIOClient.Ping(ctx); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	}
	return nil
}
