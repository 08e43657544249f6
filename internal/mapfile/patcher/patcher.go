// Package patcher refreshes the default time of already generated mapfiles
// without regenerating them.
package patcher

import (
	"regexp"
	"strings"
	"time"

	"geomet-mapfile/internal/mapfile/interval"
	"geomet-mapfile/internal/mapfile/temporal"
)

// Outcome classifies the result of patching one document.
type Outcome int

const (
	// OutcomePatched means wms_timedefault was rewritten.
	OutcomePatched Outcome = iota
	// OutcomeUnchanged means wms_timedefault already held the nearest instant.
	OutcomeUnchanged
	// OutcomeNoIntervals means the document has no wms_available_intervals.
	OutcomeNoIntervals
	// OutcomeInvalid means the intervals could not be parsed or there is no
	// wms_timedefault to rewrite.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomePatched:
		return "patched"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeNoIntervals:
		return "no_intervals"
	default:
		return "invalid"
	}
}

var (
	timeDefaultRe = regexp.MustCompile(`(.*"wms_timedefault".")(.*)(")`)
	intervalsRe   = regexp.MustCompile(`(.*"wms_available_intervals".")(.*)(")`)
)

// Rewrite sets every wms_timedefault value of text to the available interval
// nearest to now. Unless the outcome is OutcomePatched the input is returned
// unchanged.
func Rewrite(text string, now time.Time) (string, Outcome) {
	m := intervalsRe.FindStringSubmatch(text)
	if m == nil {
		return text, OutcomeNoIntervals
	}

	var candidates []time.Time
	for _, s := range strings.Split(m[2], ",") {
		t, err := interval.ParseTime(strings.TrimSpace(s))
		if err != nil {
			return text, OutcomeInvalid
		}
		candidates = append(candidates, t)
	}
	nearest, ok := temporal.NearestInstant(candidates, now)
	if !ok {
		return text, OutcomeInvalid
	}

	current := timeDefaultRe.FindStringSubmatch(text)
	if current == nil {
		return text, OutcomeInvalid
	}
	value := interval.FormatTime(nearest)
	if current[2] == value {
		return text, OutcomeUnchanged
	}

	return timeDefaultRe.ReplaceAllString(text, "${1}"+value+"${3}"), OutcomePatched
}

// CurrentDefault returns the wms_timedefault value of text.
func CurrentDefault(text string) (string, bool) {
	m := timeDefaultRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[2], true
}
