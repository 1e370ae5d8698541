package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeS3 struct {
	keys []string
	err  error
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.keys = append(f.keys, aws.ToString(in.Key))
	if f.err != nil {
		return nil, f.err
	}
	return &s3.DeleteObjectOutput{}, nil
}

func TestRemoveObject(t *testing.T) {
	f := &fakeS3{}
	c := newCleaner(f, "media", zap.NewNop())
	assert.NoError(t, c.RemoveObject(context.Background(), "chat/a.png"))
	assert.Equal(t, []string{"chat/a.png"}, f.keys)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := &fakeS3{err: errors.New("boom")}
	c := newCleaner(f, "media", zap.NewNop())
	for i := 0; i < 5; i++ {
		assert.Error(t, c.RemoveObject(context.Background(), "k"))
	}
	err := c.RemoveObject(context.Background(), "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, f.keys, 5)
}
