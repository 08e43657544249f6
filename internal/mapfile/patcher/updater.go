package patcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/store"
	"geomet-mapfile/internal/mapfile/assembler"
	"geomet-mapfile/internal/mapfile/publish"
)

// Recorder observes patch outcomes.
type Recorder interface {
	RecordPatch(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordPatch(string) {}

// Report summarises an Update call. Targets are file paths or store keys.
type Report struct {
	Patched   []string
	Unchanged []string
	NoOp      []string
	Invalid   []string
	Missing   []string
}

func (r *Report) add(target string, o Outcome) {
	switch o {
	case OutcomePatched:
		r.Patched = append(r.Patched, target)
	case OutcomeUnchanged:
		r.Unchanged = append(r.Unchanged, target)
	case OutcomeNoIntervals:
		r.NoOp = append(r.NoOp, target)
	default:
		r.Invalid = append(r.Invalid, target)
	}
}

// Updater patches published mapfiles on disk and, when a store is set, the
// copies mirrored in the store.
type Updater struct {
	dir      string
	store    store.Store
	recorder Recorder
	logger   logger.Logger
}

// NewUpdater patches files under dir. A nil store leaves store keys alone.
func NewUpdater(dir string, st store.Store, log logger.Logger) *Updater {
	return &Updater{dir: dir, store: st, recorder: noopRecorder{}, logger: log}
}

// WithRecorder attaches a metrics recorder.
func (u *Updater) WithRecorder(r Recorder) *Updater {
	if r != nil {
		u.recorder = r
	}
	return u
}

// Patch rewrites the default time of one serialized fragment of layer.
// A fragment without available intervals is returned byte-identical.
func (u *Updater) Patch(layer, text string, now time.Time) (string, Outcome) {
	out, outcome := Rewrite(text, now)
	u.recorder.RecordPatch(outcome.String())

	switch outcome {
	case OutcomeNoIntervals:
		w := apperrors.NewPatchNoOpWarning(layer)
		u.logger.Debug(w.Message, map[string]interface{}{
			"layer": layer,
			"code":  string(w.Code),
		})
	case OutcomeInvalid:
		u.logger.Warn("Could not patch wms_timedefault", map[string]interface{}{
			"layer": layer,
		})
	case OutcomePatched:
		before, _ := CurrentDefault(text)
		after, _ := CurrentDefault(out)
		u.logger.Debug("Updated wms_timedefault", map[string]interface{}{
			"layer": layer,
			"from":  before,
			"to":    after,
		})
	}
	return out, outcome
}

// Update patches the artifacts of layer, or of every layer when layer is "".
func (u *Updater) Update(ctx context.Context, layer string, now time.Time) (*Report, error) {
	rep := &Report{}

	files, err := u.files(layer)
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := u.updateFile(path, now, rep); err != nil {
			return rep, err
		}
	}

	if u.store != nil {
		keys, err := u.keys(ctx, layer)
		if err != nil {
			return rep, err
		}
		for _, key := range keys {
			if err := u.updateKey(ctx, key, now, rep); err != nil {
				return rep, err
			}
		}
	}

	u.logger.Info("Mapfile update complete", map[string]interface{}{
		"layer":     layer,
		"patched":   len(rep.Patched),
		"unchanged": len(rep.Unchanged),
		"noop":      len(rep.NoOp),
		"invalid":   len(rep.Invalid),
		"missing":   len(rep.Missing),
	})
	return rep, nil
}

func (u *Updater) files(layer string) ([]string, error) {
	if layer != "" {
		return []string{
			assembler.LayerFile(u.dir, layer),
			assembler.MapFile(u.dir, layer),
		}, nil
	}
	matches, err := filepath.Glob(filepath.Join(u.dir, "geomet-weather-*.map"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (u *Updater) updateFile(path string, now time.Time, rep *Report) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		u.logger.Warn("Mapfile not found, skipping", map[string]interface{}{"path": path})
		rep.Missing = append(rep.Missing, path)
		return nil
	}
	if err != nil {
		return apperrors.NewArtifactWriteFailedError(path, err)
	}

	out, outcome := u.Patch(layerFromFile(path), string(data), now)
	rep.add(path, outcome)
	if outcome != OutcomePatched {
		return nil
	}
	return publish.WriteFile(path, []byte(out))
}

func (u *Updater) keys(ctx context.Context, layer string) ([]string, error) {
	if layer != "" {
		return []string{publish.LayerKey(layer), publish.MapfileKey(layer)}, nil
	}

	var keys []string
	for _, suffix := range []string{"_layer", "_mapfile"} {
		names, err := u.store.List(ctx, suffix)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if n == publish.GlobalKey {
				continue
			}
			keys = append(keys, n)
		}
	}
	return keys, nil
}

func (u *Updater) updateKey(ctx context.Context, key string, now time.Time, rep *Report) error {
	text, ok, err := u.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		rep.Missing = append(rep.Missing, key)
		return nil
	}

	out, outcome := u.Patch(layerFromKey(key), text, now)
	rep.add(key, outcome)
	if outcome != OutcomePatched {
		return nil
	}
	return u.store.Set(ctx, key, out)
}

func layerFromFile(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".map")
	name = strings.TrimPrefix(name, "geomet-weather-")
	return strings.TrimSuffix(name, "_layer")
}

func layerFromKey(key string) string {
	for _, sfx := range []string{"_layer", "_mapfile"} {
		if strings.HasSuffix(key, sfx) {
			return strings.TrimSuffix(key, sfx)
		}
	}
	return key
}
