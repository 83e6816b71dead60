package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"llm-task-manager/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// VoiceArchive stores inbound voice notes in S3 for later review
type VoiceArchive struct {
	client   *s3.Client
	bucket   string
	region   string
	endpoint string // Custom endpoint for MinIO/S3-compatible services
}

// NewVoiceArchive creates a new S3-backed voice archive
func NewVoiceArchive(ctx context.Context, cfg config.S3Config) (*VoiceArchive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &VoiceArchive{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: cfg.Endpoint,
	}, nil
}

// VoiceKey builds the object key: <conversation>/<unix ts>_<file name>
func VoiceKey(conversation string, at time.Time, filename string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", " ", "_").Replace(conversation)
	if filename == "" {
		filename = "voice.ogg"
	}
	return fmt.Sprintf("%s/%d_%s", safe, at.Unix(), path.Base(filename))
}

// Store uploads audio and returns the object's URL
func (v *VoiceArchive) Store(ctx context.Context, conversation, filename string, audio []byte, contentType string) (string, error) {
	key := VoiceKey(conversation, time.Now().UTC(), filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return v.FileURL(key), nil
}

// FileURL returns the full URL for a given key
func (v *VoiceArchive) FileURL(key string) string {
	if v.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(v.endpoint, "/"), v.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", v.bucket, v.region, key)
}
