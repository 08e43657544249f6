package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/mapfile/interval"
)

type mapReader struct {
	values map[string]string
	err    error
	calls  int
}

func (m *mapReader) GetRaw(_ context.Context, key string) (string, bool, error) {
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := interval.ParseTime(s)
	require.NoError(t, err)
	return ts
}

func TestResolveFacts_NearestScenario(t *testing.T) {
	facts := Facts{
		TimeExtent:      "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H",
		ModelRunExtent:  "2020-01-12T00:00:00Z/2020-01-14T00:00:00Z/PT12H",
		DefaultModelRun: "2020-01-14T00:00:00Z",
	}

	got, err := ResolveFacts("GDPS.ETA_TT", facts, at(t, "2020-01-15T13:31:31Z"), nil)
	require.NoError(t, err)

	assert.Equal(t, "2020-01-15T15:00:00Z", got.DefaultTime)
	assert.Len(t, got.AvailableIntervals, 81)
	assert.Equal(t, facts.TimeExtent, got.TimeExtent)
	assert.Equal(t, facts.ModelRunExtent, got.ModelRunExtent)
	assert.Equal(t, facts.DefaultModelRun, got.DefaultModelRun)
}

func TestResolveFacts_TieGoesToEarlier(t *testing.T) {
	facts := Facts{TimeExtent: "2020-01-15T12:00:00Z/2020-01-15T14:00:00Z/PT2H"}

	got, err := ResolveFacts("RDPS.ETA_TT", facts, at(t, "2020-01-15T13:00:00Z"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-15T12:00:00Z", got.DefaultTime)
}

func TestResolveFacts_SingleInstant(t *testing.T) {
	facts := Facts{
		TimeExtent:  "2020-01-14T00:00:00Z/2020-01-15T00:00:00Z/PT10M",
		DefaultTime: "2020-01-15T00:00:00Z",
	}

	got, err := ResolveFacts("RADAR_1KM_RRAI", facts, at(t, "2020-01-14T00:03:00Z"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-15T00:00:00Z", got.DefaultTime)
	assert.Empty(t, got.AvailableIntervals)
}

func TestResolveFacts_DefaultTimeWithRunEnumerates(t *testing.T) {
	facts := Facts{
		TimeExtent:      "2020-01-14T00:00:00Z/2020-01-14T12:00:00Z/PT3H",
		DefaultTime:     "2020-01-14T12:00:00Z",
		ModelRunExtent:  "2020-01-13T00:00:00Z/2020-01-14T00:00:00Z/PT12H",
		DefaultModelRun: "2020-01-14T00:00:00Z",
	}

	got, err := ResolveFacts("GDPS.ETA_UU", facts, at(t, "2020-01-14T04:00:00Z"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-14T03:00:00Z", got.DefaultTime)
	assert.Len(t, got.AvailableIntervals, 5)
}

func TestResolveFacts_DefaultTimeWithPartialRunIsSingle(t *testing.T) {
	facts := Facts{
		TimeExtent:     "2020-01-14T00:00:00Z/2020-01-14T12:00:00Z/PT3H",
		DefaultTime:    "2020-01-14T12:00:00Z",
		ModelRunExtent: "2020-01-13T00:00:00Z/2020-01-14T00:00:00Z/PT12H",
	}

	coverage, err := Classify("GDPS.ETA_UU", facts)
	require.NoError(t, err)
	assert.IsType(t, SingleInstant{}, coverage)
}

func TestResolveFacts_InstantExtent(t *testing.T) {
	tests := []string{
		"2020-01-14T06:00:00Z/2020-01-14T06:00:00Z/PT3H",
		"2020-01-14T00:00:00Z/2020-01-14T06:00:00Z/PT0H",
	}
	for _, extent := range tests {
		t.Run(extent, func(t *testing.T) {
			got, err := ResolveFacts("CURRENT.CONDITIONS", Facts{TimeExtent: extent}, at(t, "2021-01-01T00:00:00Z"), nil)
			require.NoError(t, err)
			assert.Equal(t, "2020-01-14T06:00:00Z", got.DefaultTime)
			assert.Nil(t, got.AvailableIntervals)
		})
	}
}

func TestResolveFacts_MissingTimeExtent(t *testing.T) {
	_, err := ResolveFacts("HRDPS.CONTINENTAL_TT", Facts{DefaultTime: "2020-01-14T00:00:00Z"}, time.Now(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingTimeExtent))
	assert.True(t, apperrors.Skippable(err))
}

func TestResolveFacts_MalformedExtent(t *testing.T) {
	_, err := ResolveFacts("GDPS.ETA_TT", Facts{TimeExtent: "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/P1D"}, time.Now(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interval.ErrMalformedInterval))

	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, "GDPS.ETA_TT", stdErr.Metadata["layer"])
}

func TestResolveFacts_Idempotent(t *testing.T) {
	facts := Facts{
		TimeExtent:      "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H",
		ModelRunExtent:  "2020-01-12T00:00:00Z/2020-01-14T00:00:00Z/PT12H",
		DefaultModelRun: "2020-01-14T00:00:00Z",
	}
	now := at(t, "2020-01-18T07:29:00Z")

	uncached, err := ResolveFacts("GDPS.ETA_TT", facts, now, nil)
	require.NoError(t, err)
	again, err := ResolveFacts("GDPS.ETA_TT", facts, now, nil)
	require.NoError(t, err)
	assert.Equal(t, uncached, again)

	cache := NewCache()
	first, err := ResolveFacts("GDPS.ETA_TT", facts, now, cache)
	require.NoError(t, err)
	reused, err := ResolveFacts("GDPS.ETA_TT", facts, now, cache)
	require.NoError(t, err)

	assert.Equal(t, uncached, first)
	assert.Equal(t, uncached, reused)

	hits, misses := cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestResolveFacts_CacheSharedAcrossModelLayers(t *testing.T) {
	facts := Facts{
		TimeExtent:      "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H",
		ModelRunExtent:  "2020-01-12T00:00:00Z/2020-01-14T00:00:00Z/PT12H",
		DefaultModelRun: "2020-01-14T00:00:00Z",
	}
	cache := NewCache()
	now := at(t, "2020-01-15T13:31:31Z")

	for _, layer := range []string{"GDPS.ETA_TT", "GDPS.ETA_UU", "GDPS.ETA_GZ"} {
		got, err := ResolveFacts(layer, facts, now, cache)
		require.NoError(t, err)
		assert.Equal(t, "2020-01-15T15:00:00Z", got.DefaultTime)
	}

	assert.Equal(t, 1, cache.Len())
	hits, _ := cache.Stats()
	assert.Equal(t, 2, hits)
}

func TestResolveFacts_CacheGuardedByExtent(t *testing.T) {
	cache := NewCache()
	now := at(t, "2020-01-15T13:31:31Z")

	a := Facts{TimeExtent: "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H"}
	b := Facts{TimeExtent: "2020-01-15T00:00:00Z/2020-01-25T00:00:00Z/PT3H"}

	gotA, err := ResolveFacts("GDPS.ETA_TT", a, now, cache)
	require.NoError(t, err)
	gotB, err := ResolveFacts("GDPS.ETA_UU", b, now, cache)
	require.NoError(t, err)

	assert.Equal(t, "2020-01-14T00:00:00Z", gotA.AvailableIntervals[0].Format(interval.DateFormat))
	assert.Equal(t, "2020-01-15T00:00:00Z", gotB.AvailableIntervals[0].Format(interval.DateFormat))
}

func TestKeyFor(t *testing.T) {
	extent, err := interval.Parse("2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H")
	require.NoError(t, err)

	current := KeyFor("GDPS.ETA_TT", Enumerable{Extent: extent, DefaultRun: "2020-01-14T00:00:00Z"})
	assert.Equal(t, CacheKey{Model: "GDPS", Period: "PT3H", Phase: PhaseCurrent}, current)

	future := KeyFor("GDPS.ETA_TT", Enumerable{Extent: extent, DefaultRun: "2020-01-13T12:00:00Z"})
	assert.Equal(t, PhaseFuture, future.Phase)

	noDot := KeyFor("RADAR_1KM_RRAI", Enumerable{Extent: extent})
	assert.Equal(t, "RADAR_1KM_RRAI", noDot.Model)
}

func TestNearestInstant(t *testing.T) {
	now := at(t, "2020-01-15T13:00:00Z")
	candidates := []time.Time{
		at(t, "2020-01-15T10:00:00Z"),
		at(t, "2020-01-15T12:00:00Z"),
		at(t, "2020-01-15T14:00:00Z"),
	}

	got, ok := NearestInstant(candidates, now)
	require.True(t, ok)
	assert.Equal(t, candidates[1], got)

	_, ok = NearestInstant(nil, now)
	assert.False(t, ok)
}

func TestResolver_Resolve(t *testing.T) {
	reader := &mapReader{values: map[string]string{
		"geomet-data-registry_GDPS.ETA_TT_time_extent":       "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H",
		"geomet-data-registry_GDPS.ETA_TT_model_run_extent":  "2020-01-12T00:00:00Z/2020-01-14T00:00:00Z/PT12H",
		"geomet-data-registry_GDPS.ETA_TT_default_model_run": "2020-01-14T00:00:00Z",
	}}

	r := NewResolver(reader, "geomet-data-registry", nil, logger.NewTestLogger(t))
	got, err := r.Resolve(context.Background(), "GDPS.ETA_TT", at(t, "2020-01-15T13:31:31Z"))
	require.NoError(t, err)
	assert.Equal(t, "2020-01-15T15:00:00Z", got.DefaultTime)
	assert.Equal(t, 4, reader.calls)
	assert.Equal(t, 1, r.Cache().Len())
}

func TestResolver_StoreErrorPropagates(t *testing.T) {
	storeErr := apperrors.NewStoreUnavailableError(fmt.Errorf("connection refused"))
	r := NewResolver(&mapReader{err: storeErr}, "geomet-data-registry", nil, logger.NewNoOpLogger())

	_, err := r.Resolve(context.Background(), "GDPS.ETA_TT", time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreUnavailable))
	assert.False(t, apperrors.Skippable(err))
}

func TestResolveFacts_ConcurrentCache(t *testing.T) {
	facts := Facts{TimeExtent: "2020-01-14T00:00:00Z/2020-01-24T00:00:00Z/PT3H"}
	cache := NewCache()
	now := at(t, "2020-01-15T13:31:31Z")

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := ResolveFacts(fmt.Sprintf("GDPS.LAYER_%d", i), facts, now, cache)
			if err == nil {
				results[i] = got.DefaultTime
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "2020-01-15T15:00:00Z", r)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestFormatIntervals(t *testing.T) {
	ts := []time.Time{at(t, "2020-01-14T00:00:00Z"), at(t, "2020-01-14T03:00:00Z")}
	assert.Equal(t, "2020-01-14T00:00:00Z,2020-01-14T03:00:00Z", FormatIntervals(ts))
	assert.Equal(t, "", FormatIntervals(nil))
}
