//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/file-ingest-backend/internal/conf"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/server"
)

// ProviderSet 全部依赖的 Wire provider 集合
var ProviderSet = wire.NewSet(
	// 数据层
	dataProviderSet,

	// 流水线各阶段
	pipelineProviderSet,

	// 用例
	useCaseProviderSet,

	// 后台任务
	workerProviderSet,

	// 服务器
	serverProviderSet,
)

var dataProviderSet = wire.NewSet(
	provideData,
	provideArtifactRepo,
	provideMirror,
	providePurgeQueue,
	provideBizPurgeQueue,
)

var pipelineProviderSet = wire.NewSet(
	provideWorkerPool,
	provideIntake,
	provideSniffer,
	providePageVerifier,
	provideTranscoder,
	provideFinalizer,
)

var useCaseProviderSet = wire.NewSet(
	provideUploadUseCase,
	provideUploadService,
)

var workerProviderSet = wire.NewSet(
	provideJanitorWithStart,
)

var serverProviderSet = wire.NewSet(
	server.NewHTTPServer,
)

// InitializeApp 使用 Wire 初始化应用
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
