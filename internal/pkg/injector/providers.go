package injector

import (
	"context"

	"github.com/lk2023060901/file-ingest-backend/internal/conf"
	"github.com/lk2023060901/file-ingest-backend/internal/data"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/biz"
	ingestdata "github.com/lk2023060901/file-ingest-backend/internal/ingest/data"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/queue"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/render"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/service"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sniff"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/metrics"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/file-ingest-backend/internal/server"
	"go.uber.org/zap"
)

// 数据层

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideArtifactRepo(d *data.Data) biz.ArtifactRepo {
	return ingestdata.NewArtifactRepo(d.DB.DB)
}

// provideMirror 未启用 MinIO 时返回无类型的 nil，保证 finalizer 的 nil 判断成立
func provideMirror(d *data.Data) biz.Mirror {
	if d.MinIOClient == nil {
		return nil
	}
	return ingestdata.NewObjectMirror(d.MinIOClient)
}

func providePurgeQueue(config *conf.Config, d *data.Data, log *logger.Logger) *ingestdata.PurgeQueue {
	if d.RedisClient == nil {
		return nil
	}
	return ingestdata.NewPurgeQueue(d.RedisClient, config.Upload.PurgeQueueKey, log)
}

func provideBizPurgeQueue(q *ingestdata.PurgeQueue) biz.PurgeQueue {
	if q == nil {
		return nil
	}
	return q
}

// 流水线各阶段

func provideWorkerPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(&config.WorkerPool, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	metrics.RegisterPoolGauges(pool.Running, pool.QueueLength)

	return pool, pool.Shutdown, nil
}

func provideIntake(config *conf.Config, log *logger.Logger) (*quarantine.Intake, error) {
	return quarantine.NewIntake(quarantine.Options{
		StagingDir:     config.Upload.StagingDir,
		MaxBytes:       config.Upload.MaxBytes,
		CheckFreeSpace: true,
	}, log)
}

func provideSniffer(config *conf.Config, intake *quarantine.Intake, log *logger.Logger) (*sniff.Sniffer, error) {
	return sniff.New(sniff.Options{
		StagingRoot: intake.Root(),
		SniffBytes:  config.Upload.SniffBytes,
	}, log)
}

func providePageVerifier(config *conf.Config) sanitize.PageVerifier {
	if !config.Upload.VerifyRender {
		return nil
	}
	return render.NewFitzVerifier()
}

func provideTranscoder(config *conf.Config, verifier sanitize.PageVerifier, log *logger.Logger) (*sanitize.Transcoder, error) {
	return sanitize.New(sanitize.Options{
		StorageRoot:   config.Upload.StorageRoot,
		MaxPixels:     config.Upload.MaxPixels,
		MaxZipEntries: config.Upload.MaxZipEntries,
		JPEGQuality:   config.Upload.JPEGQuality,
	}, verifier, log)
}

func provideFinalizer(
	config *conf.Config,
	repo biz.ArtifactRepo,
	mirror biz.Mirror,
	purge biz.PurgeQueue,
	log *logger.Logger,
) (*biz.Finalizer, error) {
	return biz.NewFinalizer(config.Upload.QuarantineDir, repo, mirror, purge, log)
}

// 用例与服务

func provideUploadUseCase(
	config *conf.Config,
	intake *quarantine.Intake,
	sniffer *sniff.Sniffer,
	transcoder *sanitize.Transcoder,
	finalizer *biz.Finalizer,
	repo biz.ArtifactRepo,
	mirror biz.Mirror,
	pool *workerpool.Pool,
	log *logger.Logger,
) *biz.UploadUseCase {
	return biz.NewUploadUseCase(
		biz.Options{AllowedTypes: config.Upload.AllowedTypes},
		intake,
		sniffer,
		transcoder,
		finalizer,
		repo,
		mirror,
		pool,
		log,
	)
}

func provideUploadService(config *conf.Config, uc *biz.UploadUseCase, log *logger.Logger) *service.UploadService {
	return service.NewUploadService(uc, config.Upload.MaxBytes, log)
}

// 后台任务

func provideJanitorWithStart(
	config *conf.Config,
	d *data.Data,
	q *ingestdata.PurgeQueue,
	intake *quarantine.Intake,
	log *logger.Logger,
) (*queue.Janitor, func(), error) {
	var (
		tasks  queue.TaskStore
		locker queue.Locker
	)
	if q != nil {
		tasks = q
		locker = ingestdata.NewRedisLocker(d.RedisClient)
	}

	janitor := queue.NewJanitor(queue.Options{
		Interval:   config.Upload.JanitorInterval,
		StagingTTL: config.Upload.StagingTTL,
		Roots:      []string{intake.Root(), config.Upload.QuarantineDir},
	}, tasks, locker, intake, log)

	if err := janitor.Start(context.Background()); err != nil {
		return nil, nil, err
	}
	return janitor, janitor.Stop, nil
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	janitor *queue.Janitor,
	pool *workerpool.Pool,
) *App {
	log.Info("application assembled",
		zap.String("addr", config.Server.Addr()),
		zap.Bool("verify_render", config.Upload.VerifyRender),
	)
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		Janitor:    janitor,
		Pool:       pool,
	}
}
