package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type objectDeleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Cleaner removes attachment objects. Calls go through a circuit breaker
// so a failing bucket does not slow every delete down.
type S3Cleaner struct {
	client objectDeleter
	bucket string
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

// NewS3Cleaner loads the default AWS credential chain. A non-empty endpoint
// points the client at an S3-compatible store such as MinIO.
func NewS3Cleaner(ctx context.Context, region, bucket, endpoint string, log *zap.Logger) (*S3Cleaner, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newCleaner(client, bucket, log), nil
}

func newCleaner(client objectDeleter, bucket string, log *zap.Logger) *S3Cleaner {
	st := gobreaker.Settings{
		Name:        "s3-cleanup",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &S3Cleaner{client: client, bucket: bucket, cb: gobreaker.NewCircuitBreaker(st), log: log}
}

func (s *S3Cleaner) RemoveObject(ctx context.Context, key string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	return err
}
