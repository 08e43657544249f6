package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomet-mapfile/internal/common/aws"
	"geomet-mapfile/internal/common/config"
	"geomet-mapfile/internal/common/database"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/store"
	"geomet-mapfile/internal/mapfile/assembler"
	"geomet-mapfile/internal/mapfile/patcher"
	"geomet-mapfile/internal/mapfile/temporal"
)

const catalogueYAML = `
metadata:
  identification:
    title:
      en: GeoMet-Weather
      fr: GeoMet-Météo
layers:
  GDPS.ETA_TT:
    label_en: GDPS temperature
    label_fr: SGPD température
    styles: [styles/TT.json]
    forecast_model:
      label_en: GDPS
      label_fr: SGPD
      projection: mapserv/EPSG_4326.txt
      forecast_hour_interval: 3
  HRDPS.CONTINENTAL_TT:
    label_en: HRDPS temperature
    label_fr: SHRPD température
    styles: [styles/TT.json]
    forecast_model:
      label_en: HRDPS
      label_fr: SHRPD
      projection: mapserv/EPSG_4326.txt
`

var resources = map[string]string{
	"mapfile-base.json":     `{"__type__": "map", "name": "geomet-weather", "web": {"__type__": "web", "metadata": {}}, "layers": []}`,
	"mapserv/symbols.json":  `[]`,
	"mapserv/EPSG_4326.txt": "proj=longlat\ndatum=WGS84\n",
	"styles/TT.json":        `[{"__type__": "class", "name": "all"}]`,
}

type fakeNotifier struct {
	notices []aws.FailureNotice
}

func (f *fakeNotifier) NotifyFailures(_ context.Context, n aws.FailureNotice) (string, error) {
	f.notices = append(f.notices, n)
	return "msg-1", nil
}

type fixture struct {
	cfg      *config.Config
	mr       *miniredis.Miniredis
	store    *store.RedisStore
	notifier *fakeNotifier
	now      time.Time
}

func newFixture(t *testing.T, storage string) *fixture {
	t.Helper()
	base := t.TempDir()
	res := filepath.Join(base, "resources")
	for name, body := range resources {
		path := filepath.Join(res, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	catalogue := filepath.Join(base, "geomet-weather.yml")
	require.NoError(t, os.WriteFile(catalogue, []byte(catalogueYAML), 0o644))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewRedisStore(database.NewRedisFromClient(rdb), config.DefaultNamespace, "2.0.0", logger.NewNoOpLogger())

	set := func(field, value string) {
		require.NoError(t, mr.Set(temporal.FactKey(config.DefaultFactsNamespace, "GDPS.ETA_TT", field), value))
	}
	set("time_extent", "2020-01-15T00:00:00Z/2020-01-15T12:00:00Z/PT3H")
	set("default_time", "2020-01-15T00:00:00Z")
	set("model_run_extent", "2020-01-14T00:00:00Z/2020-01-15T00:00:00Z/PT12H")
	set("default_model_run", "2020-01-15T00:00:00Z")

	cfg := &config.Config{
		App: config.AppConfig{Version: "2.0.0"},
		Mapfile: config.MapfileConfig{
			BaseDir:        base,
			Config:         catalogue,
			URL:            "https://geo.weather.gc.ca/geomet",
			Storage:        storage,
			Mode:           config.ModeInclude,
			Namespace:      config.DefaultNamespace,
			FactsNamespace: config.DefaultFactsNamespace,
			ResourcesDir:   res,
			BaseTemplate:   filepath.Join(res, "mapfile-base.json"),
			Symbols:        filepath.Join(res, "mapserv/symbols.json"),
			MCFDir:         filepath.Join(res, "mcf"),
			Concurrency:    2,
		},
	}

	return &fixture{
		cfg:      cfg,
		mr:       mr,
		store:    st,
		notifier: &fakeNotifier{},
		now:      time.Date(2020, 1, 15, 7, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	return New(f.cfg, Dependencies{
		Store:    f.store,
		Notifier: f.notifier,
		Logger:   logger.NewTestLogger(t),
		Now:      func() time.Time { return f.now },
	})
}

func TestGenerate_FileMode(t *testing.T) {
	f := newFixture(t, config.StorageFile)

	res, err := f.engine(t).Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.Equal(t, []string{"HRDPS.CONTINENTAL_TT"}, res.FailedLayers())
	require.Len(t, res.Fragments, 1)

	out := f.cfg.Mapfile.OutputDir()
	assert.Equal(t, []string{
		assembler.LayerFile(out, "GDPS.ETA_TT"),
		assembler.MapFile(out, "GDPS.ETA_TT"),
		assembler.GlobalFile(out),
	}, res.Published.Files)

	data, err := os.ReadFile(assembler.LayerFile(out, "GDPS.ETA_TT"))
	require.NoError(t, err)
	v, ok := patcher.CurrentDefault(string(data))
	require.True(t, ok)
	assert.Equal(t, "2020-01-15T06:00:00Z", v)

	require.Len(t, f.notifier.notices, 1)
	notice := f.notifier.notices[0]
	assert.Equal(t, res.RunID, notice.RunID)
	assert.Equal(t, 2, notice.Total)
	assert.Equal(t, "MISSING_TIME_EXTENT", notice.Failed[0].Code)
}

func TestGenerate_StoreModeSingleLayer(t *testing.T) {
	f := newFixture(t, config.StorageStore)

	res, err := f.engine(t).Generate(context.Background(), GenerateRequest{Layer: "GDPS.ETA_TT"})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Nil(t, res.Document)
	assert.Equal(t, []string{"GDPS.ETA_TT_mapfile", "GDPS.ETA_TT_layer"}, res.Published.Keys)
	assert.True(t, f.mr.Exists("geomet-mapfile_GDPS.ETA_TT_layer"))
	assert.Empty(t, f.notifier.notices)

	mapfile, err := f.mr.Get("geomet-mapfile_GDPS.ETA_TT_mapfile")
	require.NoError(t, err)
	assert.Contains(t, mapfile, "LAYER")
	assert.Contains(t, mapfile, `NAME "GDPS.ETA_TT"`)
	assert.Contains(t, mapfile, "wms_timedefault")
	assert.NotContains(t, mapfile, "INCLUDE")
}

func TestGenerate_StrictAborts(t *testing.T) {
	f := newFixture(t, config.StorageFile)
	strict := true

	_, err := f.engine(t).Generate(context.Background(), GenerateRequest{Strict: &strict})
	require.Error(t, err)

	_, statErr := os.Stat(assembler.GlobalFile(f.cfg.Mapfile.OutputDir()))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerate_MissingCatalogue(t *testing.T) {
	f := newFixture(t, config.StorageFile)
	f.cfg.Mapfile.Config = filepath.Join(t.TempDir(), "missing.yml")

	_, err := f.engine(t).Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
}

func TestUpdate_AfterGenerate(t *testing.T) {
	f := newFixture(t, config.StorageStore)
	e := f.engine(t)

	_, err := e.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	f.now = time.Date(2020, 1, 15, 11, 0, 0, 0, time.UTC)
	rep, err := e.Update(context.Background(), "")
	require.NoError(t, err)

	out := f.cfg.Mapfile.OutputDir()
	assert.Contains(t, rep.Patched, assembler.LayerFile(out, "GDPS.ETA_TT"))
	assert.Contains(t, rep.Patched, "GDPS.ETA_TT_layer")
	assert.Contains(t, rep.Patched, "GDPS.ETA_TT_mapfile")

	data, err := os.ReadFile(assembler.LayerFile(out, "GDPS.ETA_TT"))
	require.NoError(t, err)
	v, _ := patcher.CurrentDefault(string(data))
	assert.Equal(t, "2020-01-15T12:00:00Z", v)

	stored, err := f.mr.Get("geomet-mapfile_GDPS.ETA_TT_layer")
	require.NoError(t, err)
	v, _ = patcher.CurrentDefault(stored)
	assert.Equal(t, "2020-01-15T12:00:00Z", v)
}
