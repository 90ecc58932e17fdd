package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/timmy/artsync/internal/config"
	"github.com/timmy/artsync/internal/logger"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/service"
	"github.com/timmy/artsync/internal/storage"
)

// app holds the wiring shared by the commands.
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	sqlDB       *sql.DB
	archiveRepo *repository.ArchiveRepository
	jobRepo     *repository.JobRepository
	registry    *service.SourceRegistry
}

// bucketEnsurer is implemented by storage backends that can create their bucket.
type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

func loadApp() (*app, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(log)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	archiveRepo := repository.NewArchiveRepository(db)
	registry, err := service.NewSourceRegistry(cfg.Sources, service.RegistryDeps{Archive: archiveRepo})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure sources: %w", err)
	}

	return &app{
		cfg:         cfg,
		log:         log,
		sqlDB:       sqlDB,
		archiveRepo: archiveRepo,
		jobRepo:     repository.NewJobRepository(db),
		registry:    registry,
	}, nil
}

// exportService builds the export pipeline and its storage backend.
func (a *app) exportService(ctx context.Context) (*service.ExportService, storage.ObjectStorage, error) {
	objectStorage, err := storage.NewStorage(&a.cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	if b, ok := objectStorage.(bucketEnsurer); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure bucket: %w", err)
		}
	}

	svc := service.NewExportService(a.registry, a.archiveRepo, a.jobRepo, objectStorage, nil, a.log, &service.ExportConfig{
		Workers:              a.cfg.Export.Workers,
		MaxEmptyRounds:       a.cfg.Paging.MaxEmptyRounds,
		ReturnPartialOnError: a.cfg.Paging.ReturnPartialOnError,
		DownloadTimeout:      a.cfg.Export.DownloadTimeout,
		RetryCount:           a.cfg.Export.RetryCount,
		MaxMediaBytes:        a.cfg.Export.MaxMediaBytes,
		KeyPrefix:            a.cfg.Storage.Prefix,
	})
	return svc, objectStorage, nil
}

func (a *app) close() {
	if err := a.sqlDB.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close database")
	}
	_ = logger.Sync()
}
