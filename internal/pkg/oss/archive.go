package oss

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/madrasah_billing_server/config"
)

// Archive 回调原文归档，供安全审计回溯
type Archive struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	prefix     string
}

func NewArchive(cfg *config.ArchiveConfig) (*Archive, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Archive{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		prefix:     prefix,
	}, nil
}

// ObjectKey 按渠道和日期分目录，文件名为载荷 sha256
func (a *Archive) ObjectKey(provider, payloadSHA256 string, at time.Time) string {
	return fmt.Sprintf("%scallbacks/%s/%s/%s.json", a.prefix, provider, at.UTC().Format("2006/01/02"), payloadSHA256)
}

// Store 上传回调原文，返回 object key
func (a *Archive) Store(provider, payloadSHA256 string, payload []byte) (string, error) {
	objectKey := a.ObjectKey(provider, payloadSHA256, time.Now())

	err := a.bucket.PutObject(objectKey, bytes.NewReader(payload), oss.ContentType("application/json"))
	if err != nil {
		return "", fmt.Errorf("failed to archive callback: %w", err)
	}

	return objectKey, nil
}

// Fetch 读取归档内容
func (a *Archive) Fetch(objectKey string) ([]byte, error) {
	body, err := a.bucket.GetObject(objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archived callback: %w", err)
	}
	defer body.Close()

	return io.ReadAll(body)
}

// GetSignedURL 生成带签名的临时访问URL（默认1小时有效）
func (a *Archive) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	expire := int64(3600)
	if len(expireSeconds) > 0 && expireSeconds[0] > 0 {
		expire = expireSeconds[0]
	}

	signedURL, err := a.bucket.SignURL(objectKey, oss.HTTPGet, expire)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}
