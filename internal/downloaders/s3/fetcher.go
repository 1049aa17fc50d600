package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// ObjectGetter is the part of the S3 client the fetcher uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientFactory builds a client for one bucket.
type ClientFactory func(ctx context.Context, bucket string) (ObjectGetter, error)

// Fetcher opens s3://bucket/key URLs with GetObject. Clients are cached per
// bucket because buckets may live in different regions.
type Fetcher struct {
	newClient ClientFactory
	mu        sync.Mutex
	clients   map[string]ObjectGetter
}

var _ types.Fetcher = (*Fetcher)(nil)

// NewFetcher uses the shared AWS config for profile. An empty region is
// resolved per bucket.
func NewFetcher(profile, region string) *Fetcher {
	return NewFetcherWithFactory(defaultFactory(profile, region))
}

func NewFetcherWithFactory(factory ClientFactory) *Fetcher {
	return &Fetcher{newClient: factory, clients: make(map[string]ObjectGetter)}
}

func (f *Fetcher) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := f.client(ctx, bucket)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	log := utils.GetLogger("s3")
	log.Debug().Str("op", "s3/open").Msgf("opened s3://%s/%s (length %d)", bucket, key, length)
	return &types.Response{
		StatusCode: 200,
		Status:     "OK",
		Length:     length,
		FileName:   path.Base(key),
		Body:       out.Body,
	}, nil
}

func (f *Fetcher) client(ctx context.Context, bucket string) (ObjectGetter, error) {
	f.mu.Lock()
	c, ok := f.clients[bucket]
	f.mu.Unlock()
	if ok {
		return c, nil
	}
	// built unlocked: region lookup goes over the network
	c, err := f.newClient(ctx, bucket)
	if err != nil {
		return nil, classify(ctx, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.clients[bucket]; ok {
		return existing, nil
	}
	f.clients[bucket] = c
	return c, nil
}

func defaultFactory(profile, region string) ClientFactory {
	return func(ctx context.Context, bucket string) (ObjectGetter, error) {
		opts := []func(*config.LoadOptions) error{
			config.WithRetryMode(aws.RetryModeAdaptive),
		}
		if profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(profile))
		}
		if region != "" {
			opts = append(opts, config.WithRegion(region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("error loading AWS config: %v", err)
		}
		if region == "" {
			if cfg.Region == "" {
				cfg.Region = "us-east-1"
			}
			bucketRegion, err := manager.GetBucketRegion(ctx, s3.NewFromConfig(cfg), bucket)
			if err != nil {
				return nil, fmt.Errorf("error resolving region for bucket %s: %w", bucket, err)
			}
			cfg.Region = bucketRegion
		}
		return s3.NewFromConfig(cfg), nil
	}
}

// ParseURL splits s3://bucket/key. Keys ending in "/" are prefixes and are
// rejected since one work item maps to one object.
func ParseURL(rawURL string) (string, string, error) {
	if !strings.HasPrefix(strings.ToLower(rawURL), "s3://") {
		return "", "", types.Malformed(rawURL, errors.New("not an s3 URL"))
	}
	rest := rawURL[len("s3://"):]
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", types.Malformed(rawURL, errors.New("missing bucket"))
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", types.Malformed(rawURL, errors.New("missing object key"))
	}
	return bucket, key, nil
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", types.ErrCancelled, ctxErr)
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return &types.TransportError{StatusCode: 404, Message: "no such key", Err: err}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &types.TransportError{StatusCode: respErr.HTTPStatusCode(), Message: respErr.Err.Error(), Err: err}
	}
	var bucketNotFound manager.BucketNotFound
	if errors.As(err, &bucketNotFound) {
		return &types.TransportError{StatusCode: 404, Message: "bucket not found", Err: err}
	}
	return &types.TransportError{Err: err}
}
