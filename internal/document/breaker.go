package document

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerStorage guards an ObjectStorage with a circuit breaker. A missing
// object is a normal answer and does not count as a failure.
type BreakerStorage struct {
	next    ObjectStorage
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStorage(next ObjectStorage, logger logrus.FieldLogger) *BreakerStorage {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ObjectStorageCB",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})
	return &BreakerStorage{next: next, breaker: cb}
}

func (b *BreakerStorage) Save(ctx context.Context, key, contentType string, data []byte) (ObjectInfo, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Save(ctx, key, contentType, data)
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return res.(ObjectInfo), nil
}

type getResult struct {
	body io.ReadCloser
	info ObjectInfo
}

func (b *BreakerStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		body, info, err := b.next.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return getResult{body: body, info: info}, nil
	})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	out := res.(getResult)
	return out.body, out.info, nil
}

func (b *BreakerStorage) Exists(ctx context.Context, key string) (bool, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerStorage) Delete(ctx context.Context, key string) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

func (b *BreakerStorage) Bucket() string {
	return b.next.Bucket()
}

// IsUnavailable reports whether err came from an open or saturated breaker.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
