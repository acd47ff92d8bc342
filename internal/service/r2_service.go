package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"

	cfg "github.com/leaderflow/delivery/configs"
)

// MediaHost persists media bytes somewhere publicly fetchable and returns the
// public URL. Instagram's Graph API cannot accept raw bytes, only URLs.
type MediaHost interface {
	HostPublic(ctx context.Context, data []byte, mime string) (string, error)
}

type R2Service struct {
	config cfg.Config
}

func NewR2Service(cfg cfg.Config) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	}), nil
}

// HostPublic uploads media to the public R2 bucket under a fresh key and
// returns the URL it is served from.
func (r *R2Service) HostPublic(ctx context.Context, data []byte, mime string) (string, error) {
	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	if err := r.Upload(ctx, key, data, mime); err != nil {
		return "", err
	}

	return strings.TrimSuffix(r.config.R2.PublicBase, "/") + "/" + key, nil
}

func (r *R2Service) Upload(ctx context.Context, key string, data []byte, mime string) error {
	client, err := r.client(ctx)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
