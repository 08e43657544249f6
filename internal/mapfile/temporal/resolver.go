package temporal

import (
	"context"
	"fmt"
	"time"

	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/mapfile/interval"
)

// Resolved is the temporal state compiled into a layer.
type Resolved struct {
	DefaultTime        string
	AvailableIntervals []time.Time
	TimeExtent         string
	ModelRunExtent     string
	DefaultModelRun    string
}

// FactsReader reads un-namespaced keys from the persistence collaborator.
type FactsReader interface {
	GetRaw(ctx context.Context, key string) (string, bool, error)
}

// Resolver reads facts for a layer and resolves them against one run cache.
type Resolver struct {
	reader    FactsReader
	namespace string
	cache     *Cache
	logger    logger.Logger
}

func NewResolver(reader FactsReader, namespace string, cache *Cache, log logger.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{reader: reader, namespace: namespace, cache: cache, logger: log}
}

// Cache exposes the run cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// FactKey builds the store key of one temporal fact.
func FactKey(namespace, layer, field string) string {
	return fmt.Sprintf("%s_%s_%s", namespace, layer, field)
}

// ReadFacts fetches the four temporal facts of a layer. Store failures are
// returned as is.
func (r *Resolver) ReadFacts(ctx context.Context, layer string) (Facts, error) {
	var f Facts
	fields := []struct {
		name string
		dst  *string
	}{
		{"time_extent", &f.TimeExtent},
		{"default_time", &f.DefaultTime},
		{"model_run_extent", &f.ModelRunExtent},
		{"default_model_run", &f.DefaultModelRun},
	}

	for _, field := range fields {
		val, ok, err := r.reader.GetRaw(ctx, FactKey(r.namespace, layer, field.name))
		if err != nil {
			return Facts{}, err
		}
		if ok {
			*field.dst = val
		}
	}
	return f, nil
}

// Resolve reads and resolves the facts of layer at now.
func (r *Resolver) Resolve(ctx context.Context, layer string, now time.Time) (*Resolved, error) {
	facts, err := r.ReadFacts(ctx, layer)
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveFacts(layer, facts, now, r.cache)
	if err != nil {
		r.logger.Warn("Could not resolve layer time configuration", map[string]interface{}{
			"layer": layer,
			"error": err.Error(),
		})
		return nil, err
	}

	r.logger.Debug("Resolved layer time configuration", map[string]interface{}{
		"layer":       layer,
		"defaultTime": resolved.DefaultTime,
		"intervals":   len(resolved.AvailableIntervals),
	})
	return resolved, nil
}

// ResolveFacts resolves facts without touching the store. A nil cache
// disables memoization.
func ResolveFacts(layer string, f Facts, now time.Time, cache *Cache) (*Resolved, error) {
	coverage, err := Classify(layer, f)
	if err != nil {
		return nil, err
	}

	out := &Resolved{
		TimeExtent:      f.TimeExtent,
		ModelRunExtent:  f.ModelRunExtent,
		DefaultModelRun: f.DefaultModelRun,
	}

	switch c := coverage.(type) {
	case SingleInstant:
		out.DefaultTime = c.Time
	case Enumerable:
		entry := enumerate(layer, c, now, cache)
		out.DefaultTime = interval.FormatTime(entry.nearest)
		if len(entry.intervals) > 0 {
			out.AvailableIntervals = append([]time.Time(nil), entry.intervals...)
		}
	}
	return out, nil
}

func enumerate(layer string, e Enumerable, now time.Time, cache *Cache) cacheEntry {
	key := KeyFor(layer, e)
	if cache != nil {
		if entry, ok := cache.lookup(key, e.Extent.String()); ok {
			return entry
		}
	}

	entry := cacheEntry{extent: e.Extent.String()}
	if e.Extent.IsInstant() {
		entry.nearest = e.Extent.End
	} else {
		entry.intervals = e.Extent.Enumerate()
		entry.nearest, _ = NearestInstant(entry.intervals, now)
	}

	if cache != nil {
		cache.store(key, entry)
	}
	return entry
}

// FormatIntervals joins instants the way wms_available_intervals stores them.
func FormatIntervals(ts []time.Time) string {
	buf := make([]byte, 0, len(ts)*(len(interval.DateFormat)+1))
	for i, t := range ts {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, interval.FormatTime(t)...)
	}
	return string(buf)
}
