package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"willow-server-go/src/configs"
	"willow-server-go/src/core/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client S3兼容对象存储客户端（MinIO等）
type Client struct {
	api    *s3.Client
	bucket string
	logger *utils.TaggedLogger
}

// NewClient 创建对象存储客户端
// accessKey/secretKey 从环境变量传入，未配置时返回错误，由调用方决定是否降级
func NewClient(config *configs.StorageConfig, accessKey, secretKey string, logger *utils.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(config.Endpoint)
	if endpoint == "" {
		return nil, errors.New("对象存储endpoint未配置")
	}
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("对象存储访问密钥未配置")
	}
	if config.Bucket == "" {
		return nil, errors.New("对象存储bucket未配置")
	}

	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	scheme := "https"
	if config.DisableTLS {
		scheme = "http"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	cfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("加载对象存储配置失败: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = config.ForcePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &Client{
		api:    api,
		bucket: config.Bucket,
		logger: logger.WithTag("storage"),
	}, nil
}

// EnsureBucket 确保存储桶存在，不存在则创建
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}

	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}

	if _, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}

	c.logger.Info(fmt.Sprintf("存储桶 %s 创建成功", c.bucket))
	return nil
}

// PutObject 上传对象
func (c *Client) PutObject(ctx context.Context, objectName string, data []byte, contentType string) error {
	size := int64(len(data))
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(objectName),
		Body:          bytes.NewReader(data),
		ContentLength: &size,
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("上传对象失败: %w", err)
	}

	c.logger.Debug(fmt.Sprintf("对象 %s 上传成功 (%d bytes)", objectName, size))
	return nil
}

// DeleteObject 删除对象
func (c *Client) DeleteObject(ctx context.Context, objectName string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return fmt.Errorf("删除对象失败: %w", err)
	}
	return nil
}
