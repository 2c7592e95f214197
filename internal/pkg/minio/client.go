// Package minio 将落盘后的文件镜像到 S3 兼容的存储桶
package minio

import (
	"context"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Client 绑定 Config 中唯一的镜像桶
type Client struct {
	client *minio.Client
	config *Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, ErrInvalidArgument
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, WrapErrorWithMessage("NewClient", err, "invalid configuration")
	}

	lookup := minio.BucketLookupAuto
	switch cfg.BucketLookup {
	case BucketLookupDNS:
		lookup = minio.BucketLookupDNS
	case BucketLookupPath:
		lookup = minio.BucketLookupPath
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, WrapErrorWithMessage("NewClient", err, "create client")
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mirror")
	logger.Info("minio mirror configured",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("use_ssl", cfg.UseSSL),
	)

	return &Client{client: mc, config: cfg, logger: logger}, nil
}

// Bucket 返回配置的镜像桶
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// Ping 检查镜像桶是否可达
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if _, err := c.client.BucketExists(ctx, c.config.Bucket); err != nil {
		return WrapError("Ping", err, c.config.Bucket, "")
	}
	return nil
}

// Close 标记客户端已关闭，之后的调用返回 ErrClientClosed
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.logger.Info("minio mirror closed")
	}
	return nil
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) checkClosed() error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	return nil
}
