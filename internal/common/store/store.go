// Package store is the key-value persistence collaborator: namespaced keys
// for generated artifacts plus raw access to the temporal facts written by
// the data registry.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"geomet-mapfile/internal/common/database"
	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
)

// Store is implemented by RedisStore.
type Store interface {
	// Get reads <namespace>_<key>.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes <namespace>_<key>.
	Set(ctx context.Context, key, value string) error
	// List returns the names (namespace prefix removed) of keys ending with pattern.
	List(ctx context.Context, pattern string) ([]string, error)
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error

	GetRaw(ctx context.Context, key string) (string, bool, error)
	SetRaw(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type RedisStore struct {
	client    *database.RedisClient
	namespace string
	version   string
	logger    logger.Logger
}

func NewRedisStore(client *database.RedisClient, namespace, version string, log logger.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		version:   version,
		logger:    log,
	}
}

// Namespace returns the key prefix.
func (s *RedisStore) Namespace() string {
	return s.namespace
}

// Key returns the full store key of name.
func (s *RedisStore) Key(name string) string {
	return s.namespace + "_" + name
}

// VersionKey holds the version written by Setup.
func (s *RedisStore) VersionKey() string {
	return s.namespace + "-version"
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return apperrors.NewStoreUnavailableError(err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.GetRaw(ctx, s.Key(key))
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.SetRaw(ctx, s.Key(key), value)
}

func (s *RedisStore) GetRaw(ctx context.Context, key string) (string, bool, error) {
	val, ok, err := s.client.Lookup(ctx, key)
	if err != nil {
		return "", false, apperrors.NewStoreOperationFailedError("get", key, err)
	}
	return val, ok, nil
}

func (s *RedisStore) SetRaw(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0); err != nil {
		return apperrors.NewStoreOperationFailedError("set", key, err)
	}
	s.logger.Debug("Stored key", map[string]interface{}{
		"key":   key,
		"bytes": len(value),
	})
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.client.Del(ctx, keys...); err != nil {
		return apperrors.NewStoreOperationFailedError("delete", strings.Join(keys, ","), err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, pattern string) ([]string, error) {
	match := fmt.Sprintf("%s*%s", s.namespace, pattern)
	keys, err := s.client.Scan(ctx, match)
	if err != nil {
		return nil, apperrors.NewStoreOperationFailedError("list", match, err)
	}

	prefix := s.namespace + "_"
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(names)
	return names, nil
}

// Setup marks the namespace as initialised.
func (s *RedisStore) Setup(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	if err := s.SetRaw(ctx, s.VersionKey(), s.version); err != nil {
		return err
	}
	s.logger.Info("Store setup complete", map[string]interface{}{
		"namespace": s.namespace,
		"version":   s.version,
	})
	return nil
}

// Teardown deletes every key of the namespace, including the version key.
func (s *RedisStore) Teardown(ctx context.Context) error {
	match := s.namespace + "*"
	keys, err := s.client.Scan(ctx, match)
	if err != nil {
		return apperrors.NewStoreOperationFailedError("scan", match, err)
	}
	if err := s.Delete(ctx, keys...); err != nil {
		return err
	}
	s.logger.Info("Store teardown complete", map[string]interface{}{
		"namespace": s.namespace,
		"deleted":   len(keys),
	})
	return nil
}
