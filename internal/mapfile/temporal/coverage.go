// Package temporal turns the temporal facts ingested for a layer into the
// default time and available intervals advertised by its mapfile.
package temporal

import (
	"time"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/mapfile/interval"
)

// Facts are the raw temporal values registered for one layer. Empty strings
// mean the key is absent from the store.
type Facts struct {
	TimeExtent      string
	DefaultTime     string
	ModelRunExtent  string
	DefaultModelRun string
}

// HasRun reports whether both run-dimension facts are present.
func (f Facts) HasRun() bool {
	return f.ModelRunExtent != "" && f.DefaultModelRun != ""
}

// Coverage is either SingleInstant or Enumerable.
type Coverage interface {
	isCoverage()
}

// SingleInstant is a layer with a single temporal axis whose default time
// is used verbatim.
type SingleInstant struct {
	Time string
}

// Enumerable is a layer whose default time is the instant of its extent
// nearest to now.
type Enumerable struct {
	Extent     interval.Recurring
	RunExtent  string
	DefaultRun string
}

func (SingleInstant) isCoverage() {}
func (Enumerable) isCoverage()    {}

// Classify picks the coverage variant for a layer. A layer with a default
// time is single-instant unless it also carries a model run dimension, in
// which case its extent is enumerated.
func Classify(layer string, f Facts) (Coverage, error) {
	if f.TimeExtent == "" {
		return nil, apperrors.NewMissingTimeExtentError(layer)
	}

	if f.DefaultTime != "" && !f.HasRun() {
		return SingleInstant{Time: f.DefaultTime}, nil
	}

	extent, err := interval.Parse(f.TimeExtent)
	if err != nil {
		if stdErr, ok := apperrors.AsStandard(err); ok {
			stdErr.WithMetadata("layer", layer)
		}
		return nil, err
	}

	return Enumerable{
		Extent:     extent,
		RunExtent:  f.ModelRunExtent,
		DefaultRun: f.DefaultModelRun,
	}, nil
}

// NearestInstant returns the candidate closest to now. Ties go to the
// earlier candidate, i.e. the first one in scan order.
func NearestInstant(candidates []time.Time, now time.Time) (time.Time, bool) {
	if len(candidates) == 0 {
		return time.Time{}, false
	}

	best := candidates[0]
	bestDist := absDuration(best.Sub(now))
	for _, c := range candidates[1:] {
		if d := absDuration(c.Sub(now)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
