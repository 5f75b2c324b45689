package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

const (
	uploadTimeout = 2 * time.Minute
	openTimeout   = 30 * time.Second
	deleteTimeout = 30 * time.Second
)

type objectGetter interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

type objectUploader interface {
	Upload(ctx context.Context, input *awss3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Storage keeps uploaded PDFs in a single S3 bucket.
type Storage struct {
	getter   objectGetter
	uploader objectUploader
	deleter  objectDeleter
	bucket   string
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name not set")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region not set")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg)
	return &Storage{
		getter:   client,
		uploader: manager.NewUploader(client),
		deleter:  client,
		bucket:   cfg.Bucket,
	}, nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := s.uploader.Upload(uploadCtx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "s3 upload", err)
	}
	return nil
}

// Open streams the object; the read deadline is released when the body is closed.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	getCtx, cancel := context.WithTimeout(ctx, openTimeout)

	resp, err := s.getter.GetObject(getCtx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "s3 get", err)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "s3 get", err)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	_, err := s.deleter.DeleteObject(deleteCtx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "s3 delete", err)
	}
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
