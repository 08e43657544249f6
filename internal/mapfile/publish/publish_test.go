package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomet-mapfile/internal/common/database"
	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/store"
	"geomet-mapfile/internal/mapfile/assembler"
	"geomet-mapfile/internal/mapfile/mapscript"
)

func sampleResult(dir string) *assembler.Result {
	layer := mapscript.NewObject("layer").
		Set("name", "GDPS.ETA_TT").
		Set("metadata", mapscript.TableOf("wms_timedefault", "2020-01-15T06:00:00Z"))

	doc := mapscript.NewObject("map").Set("name", "geomet-weather")
	layerDoc := doc.Clone().Set("include", []string{assembler.LayerFile(dir, "GDPS.ETA_TT")})
	global := doc.Clone().Set("include", []string{assembler.LayerFile(dir, "GDPS.ETA_TT")})
	standalone := doc.Clone().Set("layers", []*mapscript.Object{layer.Clone()})

	return &assembler.Result{
		RunID:    "run-1",
		Document: global,
		Fragments: []assembler.Fragment{{
			Layer:      "GDPS.ETA_TT",
			Layers:     []*mapscript.Object{layer},
			Document:   layerDoc,
			Standalone: standalone,
		}},
		OK: true,
	}
}

func TestPublish_FileMode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mapfile")
	p := NewPublisher(dir, nil, logger.NewTestLogger(t))

	res := sampleResult(dir)
	rep, err := p.Publish(context.Background(), res)
	require.NoError(t, err)
	assert.Empty(t, rep.Keys)
	assert.Equal(t, []string{
		filepath.Join(dir, "geomet-weather-GDPS.ETA_TT_layer.map"),
		filepath.Join(dir, "geomet-weather-GDPS.ETA_TT.map"),
		filepath.Join(dir, "geomet-weather.map"),
	}, rep.Files)

	layerText, err := os.ReadFile(filepath.Join(dir, "geomet-weather-GDPS.ETA_TT_layer.map"))
	require.NoError(t, err)
	objs, err := mapscript.Unmarshal(layerText)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "GDPS.ETA_TT", objs[0].String("name"))

	global, err := os.ReadFile(filepath.Join(dir, "geomet-weather.map"))
	require.NoError(t, err)
	assert.Contains(t, string(global), "INCLUDE")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPublish_StoreMode(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewRedisStore(database.NewRedisFromClient(rdb), "geomet-mapfile", "2.0.0", logger.NewNoOpLogger())

	dir := filepath.Join(t.TempDir(), "mapfile")
	p := NewPublisher(dir, st, logger.NewTestLogger(t))

	rep, err := p.Publish(context.Background(), sampleResult(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{"GDPS.ETA_TT_mapfile", "GDPS.ETA_TT_layer", GlobalKey}, rep.Keys)

	_, err = os.Stat(filepath.Join(dir, "geomet-weather-GDPS.ETA_TT.map"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "geomet-weather-GDPS.ETA_TT_layer.map"))
	assert.NoError(t, err)

	stored, err := mr.Get("geomet-mapfile_GDPS.ETA_TT_layer")
	require.NoError(t, err)
	assert.Contains(t, stored, "wms_timedefault")

	mapfile, err := mr.Get("geomet-mapfile_GDPS.ETA_TT_mapfile")
	require.NoError(t, err)
	assert.Contains(t, mapfile, "LAYER")
	assert.Contains(t, mapfile, "wms_timedefault")
	assert.NotContains(t, mapfile, "INCLUDE")
	assert.True(t, mr.Exists("geomet-mapfile_geomet-weather_mapfile"))
}

func TestPublish_SingleLayerSkipsGlobal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mapfile")
	p := NewPublisher(dir, nil, logger.NewNoOpLogger())

	res := sampleResult(dir)
	res.Document = nil
	rep, err := p.Publish(context.Background(), res)
	require.NoError(t, err)
	assert.Len(t, rep.Files, 2)

	_, err = os.Stat(filepath.Join(dir, "geomet-weather.map"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFile_Errors(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.map"), []byte("MAP\nEND\n"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeArtifactWriteFailed))
}

func TestWriteFile_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.map")
	require.NoError(t, WriteFile(path, []byte("one")))
	require.NoError(t, WriteFile(path, []byte("two")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}
