package minio

import (
	"errors"
	"time"
)

// BucketLookupType 桶寻址方式
type BucketLookupType string

const (
	// BucketLookupAuto 自动选择寻址方式
	BucketLookupAuto BucketLookupType = "auto"
	// BucketLookupDNS 虚拟主机方式 (bucket.endpoint)
	BucketLookupDNS BucketLookupType = "dns"
	// BucketLookupPath 路径方式 (endpoint/bucket)
	BucketLookupPath BucketLookupType = "path"
)

// Config 文件镜像桶配置
type Config struct {
	// Enabled 是否开启落盘文件镜像
	Enabled bool `mapstructure:"enabled"`

	// Endpoint S3 兼容对象存储地址
	// 例如: "play.min.io", "s3.amazonaws.com", "localhost:9000"
	Endpoint string `mapstructure:"endpoint"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	// Region 对象存储区域（可选）
	Region string `mapstructure:"region"`

	UseSSL bool `mapstructure:"use_ssl"`

	// Bucket 镜像文件写入的桶，启动时不存在则创建
	Bucket string `mapstructure:"bucket"`

	BucketLookup BucketLookupType `mapstructure:"bucket_lookup"`

	// RequestTimeout 单次镜像调用的超时
	// 默认: 30 秒
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Validate 校验配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}

	if c.AccessKeyID == "" {
		return errors.New("minio: access key ID is required")
	}

	if c.SecretAccessKey == "" {
		return errors.New("minio: secret access key is required")
	}

	if c.Bucket == "" {
		return errors.New("minio: bucket is required")
	}

	if c.BucketLookup != "" &&
		c.BucketLookup != BucketLookupAuto &&
		c.BucketLookup != BucketLookupDNS &&
		c.BucketLookup != BucketLookupPath {
		return errors.New("minio: invalid bucket lookup type")
	}

	return nil
}

// SetDefaults 为未设置的字段填充默认值
func (c *Config) SetDefaults() {
	if c.BucketLookup == "" {
		c.BucketLookup = BucketLookupAuto
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		UseSSL:         true,
		Bucket:         "ingest-artifacts",
		BucketLookup:   BucketLookupAuto,
		RequestTimeout: 30 * time.Second,
	}
}
