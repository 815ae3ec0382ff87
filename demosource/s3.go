package demosource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/datatrails/go-datatrails-common/logger"
)

// S3API is the part of *s3.Client an S3Source needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Source reads demos stored as objects under a key prefix of one bucket.
type S3Source struct {
	log    logger.Logger
	client S3API
	bucket string
	prefix string
	opts   Options
}

func NewS3Source(log logger.Logger, client S3API, bucket, prefix string, opts ...Option) *S3Source {
	return &S3Source{log: log, client: client, bucket: bucket, prefix: prefix, opts: newOptions(opts)}
}

// NewS3Client builds a client from the default AWS configuration chain.
// A non empty endpoint selects an S3 compatible store, addressed by path.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *S3Source) Load(ctx context.Context, name string) ([]byte, error) {
	key := joinKey(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := s.opts.readAll(key, out.Body)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("read s3://%s/%s: %d bytes", s.bucket, key, len(data))
	return data, nil
}

func (s *S3Source) List(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := joinKey(s.prefix, prefix)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", listPrefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !isDemoName(key) {
				continue
			}
			if s.prefix != "" {
				key = strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
			}
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names, nil
}
