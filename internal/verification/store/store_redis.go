package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/sentinel"
)

const (
	stateKeyPrefix = "verification:state:"
	authzKeyPrefix = "verification:authz:"
)

// RedisStore shares states between instances.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed store. ttl <= 0 uses DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func stateKey(subject id.SubjectID) string {
	return stateKeyPrefix + string(subject)
}

func authzKey(authzID id.AuthorizationID) string {
	return authzKeyPrefix + string(authzID)
}

func (s *RedisStore) Get(ctx context.Context, subject id.SubjectID) (models.VerificationState, error) {
	data, err := s.client.Get(ctx, stateKey(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.VerificationState{}, fmt.Errorf("state %s: %w", subject, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.VerificationState{}, fmt.Errorf("get state: %w", err)
	}
	return unmarshalState(data)
}

func (s *RedisStore) Put(ctx context.Context, st models.VerificationState) error {
	data, err := marshalState(st)
	if err != nil {
		return err
	}

	prev, err := s.Get(ctx, st.SubjectID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old := prev.Authorizer(); old != "" && old != st.Authorizer() {
			pipe.Del(ctx, authzKey(old))
		}
		pipe.Set(ctx, stateKey(st.SubjectID), data, s.ttl)
		if a := st.Authorizer(); a != "" {
			pipe.Set(ctx, authzKey(a), string(st.SubjectID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, subject id.SubjectID) error {
	prev, err := s.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	keys := []string{stateKey(subject)}
	if a := prev.Authorizer(); a != "" {
		keys = append(keys, authzKey(a))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByAuthorization(ctx context.Context, authzID id.AuthorizationID) (id.SubjectID, error) {
	subject, err := s.client.Get(ctx, authzKey(authzID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("authorization %s: %w", authzID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find authorization: %w", err)
	}
	return id.SubjectID(subject), nil
}
