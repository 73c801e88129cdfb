package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/pagecast/pagecast/configs"
)

// MediaService resolves stored media refs (R2 object keys) into presigned
// GET URLs the platform can fetch during publication. Uploading and
// transcoding happen elsewhere; this is read-only access.
type MediaService struct {
	config  config.Config
	expires time.Duration
}

func NewMediaService(cfg config.Config) *MediaService {
	return &MediaService{config: cfg, expires: time.Hour}
}

func (m *MediaService) r2Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.config.R2.AccessKey, m.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.config.R2.AccountID))
	}), nil
}

func (m *MediaService) ResolveURLs(ctx context.Context, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	client, err := m.r2Client(ctx)
	if err != nil {
		return nil, err
	}
	presigner := s3.NewPresignClient(client)

	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(m.config.R2.BucketName),
			Key:    aws.String(ref),
		}, s3.WithPresignExpires(m.expires))
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("presign media %s: %w", ref, err)
		}
		urls = append(urls, req.URL)
	}

	return urls, nil
}
