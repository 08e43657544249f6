package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomet-mapfile/internal/common/database"
	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(database.NewRedisFromClient(rdb), "geomet-mapfile", "2.0.0", logger.NewTestLogger(t)), mr
}

func TestRedisStore_GetSet(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "GDPS.ETA_TT_layer", "LAYER\nEND\n"))

	raw, err := mr.Get("geomet-mapfile_GDPS.ETA_TT_layer")
	require.NoError(t, err)
	assert.Equal(t, "LAYER\nEND\n", raw)

	val, ok, err := s.Get(ctx, "GDPS.ETA_TT_layer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "LAYER\nEND\n", val)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_RawKeys(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("geomet-data-registry_GDPS.ETA_TT_time_extent", "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H"))

	val, ok, err := s.GetRaw(ctx, "geomet-data-registry_GDPS.ETA_TT_time_extent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H", val)

	require.NoError(t, s.SetRaw(ctx, "plain", "x"))
	assert.True(t, mr.Exists("plain"))

	require.NoError(t, s.Delete(ctx, "plain"))
	assert.False(t, mr.Exists("plain"))
	require.NoError(t, s.Delete(ctx))
}

func TestRedisStore_List(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{
		"geomet-mapfile_RADAR_layer",
		"geomet-mapfile_GDPS.ETA_TT_layer",
		"geomet-mapfile_GDPS.ETA_TT_mapfile",
		"geomet-data-registry_GDPS.ETA_TT_time_extent",
	} {
		require.NoError(t, mr.Set(k, "v"))
	}
	require.NoError(t, s.Setup(ctx))

	layers, err := s.List(ctx, "_layer")
	require.NoError(t, err)
	assert.Equal(t, []string{"GDPS.ETA_TT_layer", "RADAR_layer"}, layers)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.NotContains(t, all, "version")
}

func TestRedisStore_SetupTeardown(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Setup(ctx))
	v, err := mr.Get("geomet-mapfile-version")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v)

	require.NoError(t, s.Set(ctx, "A_mapfile", "x"))
	require.NoError(t, mr.Set("geomet-data-registry_A_time_extent", "keep"))

	require.NoError(t, s.Teardown(ctx))
	assert.False(t, mr.Exists("geomet-mapfile-version"))
	assert.False(t, mr.Exists("geomet-mapfile_A_mapfile"))
	assert.True(t, mr.Exists("geomet-data-registry_A_time_extent"))

	require.NoError(t, s.Teardown(ctx))
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	err := s.Setup(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreUnavailable))
}

func TestRedisStore_OperationErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisStore(database.NewRedisFromClient(rdb), "geomet-mapfile", "2.0.0", logger.NewNoOpLogger())
	ctx := context.Background()

	mock.ExpectGet("geomet-mapfile_A_layer").SetErr(errors.New("connection reset"))
	_, _, err := s.Get(ctx, "A_layer")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreOperationFailed))

	mock.ExpectSet("geomet-mapfile_A_layer", "x", 0).SetErr(errors.New("READONLY"))
	err = s.Set(ctx, "A_layer", "x")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreOperationFailed))

	mock.ExpectScan(0, "geomet-mapfile*_layer", 500).SetErr(errors.New("timeout"))
	_, err = s.List(ctx, "_layer")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreOperationFailed))

	mock.ExpectGet("missing").RedisNil()
	_, ok, err := s.GetRaw(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ScanPages(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisStore(database.NewRedisFromClient(rdb), "ns", "1", logger.NewNoOpLogger())

	mock.ExpectScan(0, "ns*", 500).SetVal([]string{"ns_a", "ns_b"}, 7)
	mock.ExpectScan(7, "ns*", 500).SetVal([]string{"ns-version"}, 0)
	mock.ExpectDel("ns_a", "ns_b", "ns-version").SetVal(3)

	require.NoError(t, s.Teardown(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
