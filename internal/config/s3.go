package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates an S3 client using the configured AWS profile.
//
// The client is cached so subsequent calls return the same instance.
func (l *Loader) NewS3Client(ctx context.Context, optFns ...func(*s3.Options)) (*s3.Client, error) {
	profile := l.ForS3().AWSProfile
	key := "s3:" + profile
	if c, ok := l.s3clientCache.Load(key); ok {
		return c.(*s3.Client), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile))
	if err != nil {
		return nil, err
	}

	c := s3.NewFromConfig(cfg, append([]func(*s3.Options){func(options *s3.Options) {
		// ranged GetObject responses have no checksum to validate.
		options.DisableLogOutputChecksumValidationSkipped = true
	}}, optFns...)...)
	if v, loaded := l.s3clientCache.LoadOrStore(key, c); loaded {
		return v.(*s3.Client), nil
	}

	return c, nil
}

// NewS3Client calls Loader.NewS3Client on the DefaultLoader instance.
func NewS3Client(ctx context.Context, optFns ...func(*s3.Options)) (*s3.Client, error) {
	return DefaultLoader.NewS3Client(ctx, optFns...)
}
