package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lk2023060901/file-ingest-backend/internal/pkg/database"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/redis"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 INGEST_UPLOAD_MAX_BYTES
const EnvPrefix = "INGEST"

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        logger.Config     `mapstructure:"log"`
	Database   database.Config   `mapstructure:"database"`
	Redis      redis.Config      `mapstructure:"redis"`
	MinIO      minio.Config      `mapstructure:"minio"`
	Upload     UploadConfig      `mapstructure:"upload"`
	WorkerPool workerpool.Config `mapstructure:"workerpool"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin 模式: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 返回 HTTP 监听地址 host:port
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UploadConfig 上传流水线配置
type UploadConfig struct {
	StagingDir    string `mapstructure:"staging_dir"`
	StorageRoot   string `mapstructure:"storage_root"`
	QuarantineDir string `mapstructure:"quarantine_dir"`

	MaxBytes      int64    `mapstructure:"max_bytes"`
	SniffBytes    int      `mapstructure:"sniff_bytes"`
	MaxPixels     int64    `mapstructure:"max_pixels"`
	MaxZipEntries int      `mapstructure:"max_zip_entries"`
	JPEGQuality   int      `mapstructure:"jpeg_quality"`
	AllowedTypes  []string `mapstructure:"allowed_types"`
	VerifyRender  bool     `mapstructure:"verify_render"`

	PurgeQueueKey   string        `mapstructure:"purge_queue_key"`
	StagingTTL      time.Duration `mapstructure:"staging_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

func (c *UploadConfig) Validate() error {
	if c.StagingDir == "" || c.StorageRoot == "" || c.QuarantineDir == "" {
		return errors.New("upload: staging_dir, storage_root and quarantine_dir are required")
	}
	if err := checkDisjointDirs(map[string]string{
		"staging_dir":    c.StagingDir,
		"storage_root":   c.StorageRoot,
		"quarantine_dir": c.QuarantineDir,
	}); err != nil {
		return err
	}
	if c.MaxBytes <= 0 {
		return errors.New("upload: max_bytes must be > 0")
	}
	if c.SniffBytes < 512 {
		return errors.New("upload: sniff_bytes must be >= 512")
	}
	if c.MaxPixels <= 0 {
		return errors.New("upload: max_pixels must be > 0")
	}
	if c.MaxZipEntries <= 0 {
		return errors.New("upload: max_zip_entries must be > 0")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("upload: jpeg_quality must be between 1 and 100")
	}
	if c.JanitorInterval <= 0 || c.StagingTTL <= 0 {
		return errors.New("upload: janitor_interval and staging_ttl must be > 0")
	}
	return nil
}

// checkDisjointDirs 比较清理后的绝对路径，三个目录既不能相同也不能互相嵌套
func checkDisjointDirs(dirs map[string]string) error {
	keys := make([]string, 0, len(dirs))
	abs := make(map[string]string, len(dirs))
	for key, dir := range dirs {
		p, err := filepath.Abs(filepath.Clean(dir))
		if err != nil {
			return fmt.Errorf("upload: %s: %w", key, err)
		}
		keys = append(keys, key)
		abs[key] = p
	}
	sort.Strings(keys)

	for i, a := range keys {
		for _, b := range keys[i+1:] {
			if isWithin(abs[a], abs[b]) || isWithin(abs[b], abs[a]) {
				return fmt.Errorf("upload: %s (%s) and %s (%s) must be distinct and not nested", a, abs[a], b, abs[b])
			}
		}
	}
	return nil
}

// isWithin 判断 path 是否等于 dir 或位于 dir 之下
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	logCfg := logger.DefaultConfig()
	v.SetDefault("log.level", logCfg.Level)
	v.SetDefault("log.format", logCfg.Format)
	v.SetDefault("log.output", logCfg.Output)
	v.SetDefault("log.file.filename", logCfg.File.Filename)
	v.SetDefault("log.file.maxsize", logCfg.File.MaxSize)
	v.SetDefault("log.file.maxage", logCfg.File.MaxAge)
	v.SetDefault("log.file.maxbackups", logCfg.File.MaxBackups)
	v.SetDefault("log.file.compress", logCfg.File.Compress)
	v.SetDefault("log.enablecaller", logCfg.EnableCaller)
	v.SetDefault("log.enablestacktrace", logCfg.EnableStacktrace)

	dbCfg := database.DefaultConfig()
	v.SetDefault("database.host", dbCfg.Host)
	v.SetDefault("database.port", dbCfg.Port)
	v.SetDefault("database.user", dbCfg.User)
	v.SetDefault("database.password", dbCfg.Password)
	v.SetDefault("database.dbname", dbCfg.DBName)
	v.SetDefault("database.sslmode", dbCfg.SSLMode)
	v.SetDefault("database.timezone", dbCfg.Timezone)
	v.SetDefault("database.maxidleconns", dbCfg.MaxIdleConns)
	v.SetDefault("database.maxopenconns", dbCfg.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", dbCfg.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", dbCfg.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", dbCfg.LogLevel)
	v.SetDefault("database.slowthreshold", dbCfg.SlowThreshold)
	v.SetDefault("database.preparestmt", dbCfg.PrepareStmt)
	v.SetDefault("database.automigrate", dbCfg.AutoMigrate)

	redisCfg := redis.DefaultConfig()
	v.SetDefault("redis.enabled", redisCfg.Enabled)
	v.SetDefault("redis.mode", redisCfg.Mode)
	v.SetDefault("redis.addr", redisCfg.Addr)
	v.SetDefault("redis.pool_size", redisCfg.PoolSize)
	v.SetDefault("redis.min_idle_conns", redisCfg.MinIdleConns)
	v.SetDefault("redis.dial_timeout", redisCfg.DialTimeout)
	v.SetDefault("redis.read_timeout", redisCfg.ReadTimeout)
	v.SetDefault("redis.write_timeout", redisCfg.WriteTimeout)
	v.SetDefault("redis.pool_timeout", redisCfg.PoolTimeout)
	v.SetDefault("redis.max_retries", redisCfg.MaxRetries)

	minioCfg := minio.DefaultConfig()
	v.SetDefault("minio.enabled", minioCfg.Enabled)
	v.SetDefault("minio.use_ssl", minioCfg.UseSSL)
	v.SetDefault("minio.bucket", minioCfg.Bucket)
	v.SetDefault("minio.bucket_lookup", minioCfg.BucketLookup)
	v.SetDefault("minio.request_timeout", minioCfg.RequestTimeout)

	poolCfg := workerpool.DefaultConfig()
	v.SetDefault("workerpool.workers", poolCfg.Workers)
	v.SetDefault("workerpool.queue_size", poolCfg.QueueSize)
	v.SetDefault("workerpool.enable_priority", poolCfg.EnablePriority)

	v.SetDefault("upload.staging_dir", "data/staging")
	v.SetDefault("upload.storage_root", "data/storage")
	v.SetDefault("upload.quarantine_dir", "data/quarantine")
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("upload.sniff_bytes", 3072)
	v.SetDefault("upload.max_pixels", 50_000_000)
	v.SetDefault("upload.max_zip_entries", 10_000)
	v.SetDefault("upload.jpeg_quality", 90)
	v.SetDefault("upload.allowed_types", []string{"image/*", "pdf"})
	v.SetDefault("upload.verify_render", false)
	v.SetDefault("upload.purge_queue_key", "ingest:purge")
	v.SetDefault("upload.staging_ttl", time.Hour)
	v.SetDefault("upload.janitor_interval", time.Minute)
}

// Flags 返回命令行参数，绑定到 viper 后覆盖配置文件与环境变量
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ingest", pflag.ContinueOnError)
	fs.StringP("config", "c", "configs/config.yaml", "path to the YAML config file")
	fs.Int("server.port", 0, "HTTP listen port")
	fs.String("log.level", "", "log level (debug, info, warn, error)")
	return fs
}

// LoadConfig 读取配置：默认值 < 配置文件 < 环境变量 < 命令行参数。
// path 为空或文件不存在时只使用默认值与环境变量。
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if flags != nil {
		// 只绑定显式设置的参数，未设置的参数不能用零值覆盖配置文件
		var bindErr error
		flags.Visit(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(f.Name, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 逐段验证配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server: invalid mode %q", c.Server.Mode)
	}

	validators := []struct {
		name string
		fn   func() error
	}{
		{"log", c.Log.Validate},
		{"database", c.Database.Validate},
		{"redis", c.Redis.Validate},
		{"minio", c.MinIO.Validate},
		{"workerpool", c.WorkerPool.Validate},
		{"upload", c.Upload.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("invalid %s config: %w", v.name, err)
		}
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
