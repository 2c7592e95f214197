package injector

import (
	"github.com/lk2023060901/file-ingest-backend/internal/conf"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/queue"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/file-ingest-backend/internal/server"
)

// App 汇总应用的全部依赖
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	Janitor    *queue.Janitor
	Pool       *workerpool.Pool
}
