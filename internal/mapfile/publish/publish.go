// Package publish writes the documents of a generation run to disk and,
// optionally, mirrors them into the key-value store.
package publish

import (
	"context"
	"os"
	"path/filepath"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/store"
	"geomet-mapfile/internal/mapfile/assembler"
	"geomet-mapfile/internal/mapfile/mapscript"
)

// GlobalKey is the store key (without namespace) of the service-wide mapfile.
const GlobalKey = "geomet-weather_mapfile"

// LayerKey is the store key of a layer's LAYER-only fragment.
func LayerKey(layer string) string {
	return layer + "_layer"
}

// MapfileKey is the store key of a layer's standalone mapfile.
func MapfileKey(layer string) string {
	return layer + "_mapfile"
}

// Report lists what a Publish call wrote.
type Report struct {
	Files []string
	Keys  []string
}

type Publisher struct {
	dir    string
	store  store.Store
	logger logger.Logger
}

// NewPublisher writes under dir. A nil store disables mirroring.
func NewPublisher(dir string, st store.Store, log logger.Logger) *Publisher {
	return &Publisher{dir: dir, store: st, logger: log}
}

// Dir returns the output directory.
func (p *Publisher) Dir() string {
	return p.dir
}

// Publish writes every fragment of res. LAYER-only fragments and the global
// document are always written to disk; standalone per-layer mapfiles go to
// disk in file mode. In store mode the self-contained rendition of each
// layer is stored so that readers never depend on local include paths.
func (p *Publisher) Publish(ctx context.Context, res *assembler.Result) (*Report, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, apperrors.NewArtifactWriteFailedError(p.dir, err)
	}

	rep := &Report{}
	for _, f := range res.Fragments {
		layerText := mapscript.Marshal(f.Layers...)
		docText := mapscript.Marshal(f.Document)

		layerPath := assembler.LayerFile(p.dir, f.Layer)
		if err := WriteFile(layerPath, layerText); err != nil {
			return rep, err
		}
		rep.Files = append(rep.Files, layerPath)

		if p.store == nil {
			mapPath := assembler.MapFile(p.dir, f.Layer)
			if err := WriteFile(mapPath, docText); err != nil {
				return rep, err
			}
			rep.Files = append(rep.Files, mapPath)
			continue
		}

		standalone := docText
		if f.Standalone != nil {
			standalone = mapscript.Marshal(f.Standalone)
		}
		if err := p.store.Set(ctx, MapfileKey(f.Layer), string(standalone)); err != nil {
			return rep, err
		}
		if err := p.store.Set(ctx, LayerKey(f.Layer), string(layerText)); err != nil {
			return rep, err
		}
		rep.Keys = append(rep.Keys, MapfileKey(f.Layer), LayerKey(f.Layer))
	}

	if res.Document != nil {
		text := mapscript.Marshal(res.Document)
		path := assembler.GlobalFile(p.dir)
		if err := WriteFile(path, text); err != nil {
			return rep, err
		}
		rep.Files = append(rep.Files, path)

		if p.store != nil {
			if err := p.store.Set(ctx, GlobalKey, string(text)); err != nil {
				return rep, err
			}
			rep.Keys = append(rep.Keys, GlobalKey)
		}
	}

	p.logger.Info("Published mapfiles", map[string]interface{}{
		"runId": res.RunID,
		"files": len(rep.Files),
		"keys":  len(rep.Keys),
	})
	return rep, nil
}

// WriteFile replaces path atomically so readers never see a partial mapfile.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return apperrors.NewArtifactWriteFailedError(path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewArtifactWriteFailedError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewArtifactWriteFailedError(path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return apperrors.NewArtifactWriteFailedError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.NewArtifactWriteFailedError(path, err)
	}
	return nil
}
