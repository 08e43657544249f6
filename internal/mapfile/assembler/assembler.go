// Package assembler runs one generation pass: it resolves and compiles every
// selected layer and assembles the global and per-layer mapfile documents.
package assembler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/mapfile/compiler"
	"geomet-mapfile/internal/mapfile/layercfg"
	"geomet-mapfile/internal/mapfile/mapscript"
	"geomet-mapfile/internal/mapfile/temporal"
)

// Mode selects how the global document references layers.
type Mode int

const (
	// ModeInclude makes the global document INCLUDE the per-layer fragments.
	ModeInclude Mode = iota
	// ModeMonolithic embeds every compiled layer in the global document.
	ModeMonolithic
)

func (m Mode) String() string {
	if m == ModeMonolithic {
		return "monolithic"
	}
	return "include"
}

// Policy decides what a layer failure does to the run.
type Policy int

const (
	// PolicyBestEffort skips failed layers and reports them in Result.Failures.
	PolicyBestEffort Policy = iota
	// PolicyStrict aborts the run on the first layer failure.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "best-effort"
}

// LayerFile is the path of the LAYER-only fragment of layer under dir.
func LayerFile(dir, layer string) string {
	return filepath.Join(dir, fmt.Sprintf("geomet-weather-%s_layer.map", layer))
}

// MapFile is the path of the standalone per-layer mapfile under dir.
func MapFile(dir, layer string) string {
	return filepath.Join(dir, fmt.Sprintf("geomet-weather-%s.map", layer))
}

// GlobalFile is the path of the service-wide mapfile under dir.
func GlobalFile(dir string) string {
	return filepath.Join(dir, "geomet-weather.map")
}

type Options struct {
	BaseTemplate string
	Symbols      string
	ResourcesDir string
	// OutputDir is where fragments are published; include references point here.
	OutputDir  string
	ServiceURL string
	Version    string

	Mode        Mode
	Policy      Policy
	Concurrency int
}

// Recorder observes per-layer outcomes.
type Recorder interface {
	RecordLayer(layer string, err error, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordLayer(string, error, time.Duration) {}

// Fragment is the output of one compiled layer.
type Fragment struct {
	Layer string
	// Layers are the LAYER blocks written to the _layer.map fragment.
	Layers []*mapscript.Object
	// Document is the standalone MAP document of the layer as written to disk.
	Document *mapscript.Object
	// Standalone is the self-contained MAP of the layer with its LAYER block
	// inlined. It equals Document in monolithic mode.
	Standalone *mapscript.Object
}

// LayerFailure records a skipped layer.
type LayerFailure struct {
	Layer string
	Err   error
}

func (f LayerFailure) Code() apperrors.ErrorCode {
	if se, ok := apperrors.AsStandard(f.Err); ok {
		return se.Code
	}
	return apperrors.ErrCodeInternal
}

// Result is the outcome of one run.
type Result struct {
	RunID  string
	Target string
	Mode   Mode
	// Document is the global MAP document; nil when a single layer was targeted.
	Document  *mapscript.Object
	Fragments []Fragment
	Failures  []LayerFailure
	// OK is true only when no layer failed.
	OK bool
}

// FailedLayers lists the names of skipped layers.
func (r *Result) FailedLayers() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Layer
	}
	return out
}

type Assembler struct {
	opts           Options
	catalogue      *layercfg.Catalogue
	compiler       *compiler.Compiler
	facts          temporal.FactsReader
	factsNamespace string
	recorder       Recorder
	logger         logger.Logger
}

func NewAssembler(
	opts Options,
	catalogue *layercfg.Catalogue,
	comp *compiler.Compiler,
	facts temporal.FactsReader,
	factsNamespace string,
	log logger.Logger,
) *Assembler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Assembler{
		opts:           opts,
		catalogue:      catalogue,
		compiler:       comp,
		facts:          facts,
		factsNamespace: factsNamespace,
		recorder:       noopRecorder{},
		logger:         log,
	}
}

// WithRecorder attaches a metrics recorder.
func (a *Assembler) WithRecorder(r Recorder) *Assembler {
	if r != nil {
		a.recorder = r
	}
	return a
}

type layerOutcome struct {
	record *compiler.Record
	err    error
}

// Assemble runs one generation pass at now. target restricts the run to a
// single layer. Layer failures are returned in the result unless the policy
// is strict; store failures always abort.
func (a *Assembler) Assemble(ctx context.Context, target string, now time.Time) (*Result, error) {
	runID := uuid.New().String()
	log := a.logger.WithFields(map[string]interface{}{
		"runId":  runID,
		"target": target,
	})

	layers, err := a.catalogue.Select(target)
	if err != nil {
		return nil, err
	}

	base, err := LoadTemplate(a.opts.BaseTemplate, a.opts.Symbols)
	if err != nil {
		return nil, err
	}
	prepareBase(base, a.opts.ResourcesDir, a.catalogue.Metadata, a.opts.ServiceURL, a.opts.Version, now)

	log.Info("Starting mapfile generation", map[string]interface{}{
		"layers":      len(layers),
		"mode":        a.opts.Mode.String(),
		"policy":      a.opts.Policy.String(),
		"concurrency": a.opts.Concurrency,
	})

	resolver := temporal.NewResolver(a.facts, a.factsNamespace, temporal.NewCache(), log)
	outcomes, err := a.compileAll(ctx, layers, resolver, now)
	if err != nil {
		log.Error("Mapfile generation aborted", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	res := &Result{RunID: runID, Target: target, Mode: a.opts.Mode}
	var compiled []*mapscript.Object
	var active []*layercfg.Layer

	for i, layer := range layers {
		out := outcomes[i]
		if out.err != nil {
			res.Failures = append(res.Failures, LayerFailure{Layer: layer.Name, Err: out.err})
			continue
		}

		objs := out.record.Objects()
		compiled = append(compiled, objs...)
		active = append(active, layer)

		standalone := standaloneDocument(base, layer, objs)
		doc := standalone
		if a.opts.Mode == ModeInclude {
			doc = base.Clone()
			doc.Set("include", []string{LayerFile(a.opts.OutputDir, layer.Name)})
		}
		res.Fragments = append(res.Fragments, Fragment{
			Layer:      layer.Name,
			Layers:     objs,
			Document:   doc,
			Standalone: standalone,
		})
	}

	if target == "" {
		res.Document = a.globalDocument(base, res.Fragments, active, compiled)
	}
	res.OK = len(res.Failures) == 0

	hits, misses := resolver.Cache().Stats()
	log.Info("Mapfile generation complete", map[string]interface{}{
		"compiled":    len(res.Fragments),
		"failed":      len(res.Failures),
		"cacheHits":   hits,
		"cacheMisses": misses,
	})
	return res, nil
}

// compileAll resolves and compiles layers with bounded concurrency. The
// returned slice is index-aligned with layers.
func (a *Assembler) compileAll(ctx context.Context, layers []*layercfg.Layer, resolver *temporal.Resolver, now time.Time) ([]layerOutcome, error) {
	outcomes := make([]layerOutcome, len(layers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for i, layer := range layers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			rec, err := a.compileLayer(gctx, layer, resolver, now)
			a.recorder.RecordLayer(layer.Name, err, time.Since(start))

			if err == nil {
				outcomes[i] = layerOutcome{record: rec}
				return nil
			}
			if !apperrors.Skippable(err) {
				return err
			}

			a.logger.Warn("Skipping layer", map[string]interface{}{
				"layer": layer.Name,
				"error": err.Error(),
			})
			if a.opts.Policy == PolicyStrict {
				return err
			}
			outcomes[i] = layerOutcome{err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (a *Assembler) compileLayer(ctx context.Context, layer *layercfg.Layer, resolver *temporal.Resolver, now time.Time) (*compiler.Record, error) {
	if err := layer.Validate(); err != nil {
		return nil, err
	}
	resolved, err := resolver.Resolve(ctx, layer.Name, now)
	if err != nil {
		return nil, err
	}
	return a.compiler.Compile(layer.Name, layer, resolved)
}

// standaloneDocument builds the self-contained MAP of one layer.
func standaloneDocument(base *mapscript.Object, layer *layercfg.Layer, objs []*mapscript.Object) *mapscript.Object {
	doc := base.Clone()
	doc.Set("layers", cloneAll(objs))
	narrow(doc, layer)
	return doc
}

func (a *Assembler) globalDocument(base *mapscript.Object, fragments []Fragment, active []*layercfg.Layer, compiled []*mapscript.Object) *mapscript.Object {
	doc := base.Clone()
	if a.opts.Mode == ModeInclude {
		includes := make([]string, len(fragments))
		for i, f := range fragments {
			includes[i] = LayerFile(a.opts.OutputDir, f.Layer)
		}
		doc.Set("include", includes)
		return doc
	}
	doc.Set("layers", cloneAll(compiled))
	narrow(doc, active...)
	return doc
}

func cloneAll(objs []*mapscript.Object) []*mapscript.Object {
	out := make([]*mapscript.Object, len(objs))
	for i, o := range objs {
		out[i] = o.Clone()
	}
	return out
}
