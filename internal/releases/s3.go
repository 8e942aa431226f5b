package releases

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const presignExpiry = 15 * time.Minute

type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Source hands out short-lived presigned GET URLs for the manifest keys.
type S3Source struct {
	Bucket    string
	Manifest  Manifest
	Presigner Presigner
	Expires   time.Duration
}

type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Source builds a presign client from the default AWS chain. A custom
// endpoint switches to path-style addressing for MinIO and friends.
func NewS3Source(ctx context.Context, opts S3Options, m Manifest) (*S3Source, error) {
	loaders := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{
		Bucket:    opts.Bucket,
		Manifest:  m,
		Presigner: s3.NewPresignClient(client),
		Expires:   presignExpiry,
	}, nil
}

func (s *S3Source) DownloadURL(ctx context.Context, p Platform) (string, error) {
	a, err := s.Manifest.Asset(p)
	if err != nil {
		return "", err
	}
	key := a.Key
	if key == "" {
		key = a.Name
	}
	expires := s.Expires
	if expires <= 0 {
		expires = presignExpiry
	}

	req, err := s.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", a.Name)),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
