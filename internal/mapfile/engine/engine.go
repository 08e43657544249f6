// Package engine wires configuration, the store and the mapfile packages
// into the two runs exposed by the CLI and the job workers: generate and
// update.
package engine

import (
	"context"
	"time"

	"geomet-mapfile/internal/common/aws"
	"geomet-mapfile/internal/common/config"
	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/metrics"
	"geomet-mapfile/internal/common/observability"
	"geomet-mapfile/internal/common/store"
	"geomet-mapfile/internal/mapfile/assembler"
	"geomet-mapfile/internal/mapfile/compiler"
	"geomet-mapfile/internal/mapfile/layercfg"
	"geomet-mapfile/internal/mapfile/mcf"
	"geomet-mapfile/internal/mapfile/patcher"
	"geomet-mapfile/internal/mapfile/publish"
)

// Notifier is told about layers a generation run had to skip.
type Notifier interface {
	NotifyFailures(ctx context.Context, notice aws.FailureNotice) (string, error)
}

type Dependencies struct {
	// Store provides temporal facts and, in store mode, receives artifacts.
	Store         store.Store
	Notifier      Notifier
	Observability *observability.Observability
	Logger        logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// GenerateRequest narrows one generation run. Zero values fall back to
// configuration.
type GenerateRequest struct {
	Layer   string
	Storage string
	Mode    string
	Strict  *bool
}

// GenerateResult pairs the assembled run with what was published.
type GenerateResult struct {
	*assembler.Result
	Published *publish.Report
}

type Engine struct {
	cfg      *config.Config
	deps     Dependencies
	recorder *metrics.Recorder
}

func New(cfg *config.Config, deps Dependencies) *Engine {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{cfg: cfg, deps: deps, recorder: metrics.NewRecorder()}
}

// Generate assembles the catalogue (or a single layer) and publishes it.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (result *GenerateResult, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "generate", start, err) }()

	m := e.cfg.Mapfile
	if req.Storage == "" {
		req.Storage = m.Storage
	}
	if req.Mode == "" {
		req.Mode = m.Mode
	}
	strict := m.Strict
	if req.Strict != nil {
		strict = *req.Strict
	}

	catalogue, err := layercfg.Load(m.Config)
	if err != nil {
		return nil, err
	}

	comp := compiler.NewCompiler(compiler.Options{
		ResourcesDir:  m.ResourcesDir,
		TileIndexURL:  m.TileIndex.URL,
		TileIndexType: m.TileIndex.Type,
	}, mcf.NewReader(m.MCFDir), e.deps.Logger)

	opts := assembler.Options{
		BaseTemplate: m.BaseTemplate,
		Symbols:      m.Symbols,
		ResourcesDir: m.ResourcesDir,
		OutputDir:    m.OutputDir(),
		ServiceURL:   m.URL,
		Version:      e.cfg.App.Version,
		Mode:         assembler.ModeInclude,
		Policy:       assembler.PolicyBestEffort,
		Concurrency:  m.Concurrency,
	}
	if req.Mode == config.ModeMonolithic {
		opts.Mode = assembler.ModeMonolithic
	}
	if strict {
		opts.Policy = assembler.PolicyStrict
	}

	asm := assembler.NewAssembler(opts, catalogue, comp, e.deps.Store, m.FactsNamespace, e.deps.Logger).
		WithRecorder(e.recorder)

	res, err := asm.Assemble(ctx, req.Layer, e.deps.Now().UTC())
	if err != nil {
		return nil, err
	}

	var sink store.Store
	if req.Storage == config.StorageStore {
		sink = e.deps.Store
	}
	rep, err := publish.NewPublisher(m.OutputDir(), sink, e.deps.Logger).Publish(ctx, res)
	if err != nil {
		return nil, err
	}

	if o := e.deps.Observability; o != nil {
		o.RecordLayers(ctx, len(res.Fragments), len(res.Failures))
	}
	e.notify(ctx, res)

	return &GenerateResult{Result: res, Published: rep}, nil
}

// Update refreshes wms_timedefault in already published mapfiles.
func (e *Engine) Update(ctx context.Context, layer string) (rep *patcher.Report, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "update", start, err) }()

	var st store.Store
	if e.cfg.Mapfile.UsesStore() {
		st = e.deps.Store
	}
	return patcher.NewUpdater(e.cfg.Mapfile.OutputDir(), st, e.deps.Logger).
		WithRecorder(e.recorder).
		Update(ctx, layer, e.deps.Now().UTC())
}

func (e *Engine) observe(ctx context.Context, operation string, start time.Time, err error) {
	metrics.ObserveRun(operation, start, err)
	if o := e.deps.Observability; o != nil {
		o.RecordRun(ctx, operation, time.Since(start), err)
	}
}

func (e *Engine) notify(ctx context.Context, res *assembler.Result) {
	if e.deps.Notifier == nil || len(res.Failures) == 0 {
		return
	}

	notice := aws.FailureNotice{
		RunID:    res.RunID,
		Target:   res.Target,
		Total:    len(res.Fragments) + len(res.Failures),
		Occurred: e.deps.Now().UTC(),
	}
	for _, f := range res.Failures {
		notice.Failed = append(notice.Failed, aws.FailedLayer{
			Layer: f.Layer,
			Code:  string(f.Code()),
			Error: f.Err.Error(),
		})
	}

	id, err := e.deps.Notifier.NotifyFailures(ctx, notice)
	if err != nil {
		e.deps.Logger.Warn("Failed to send failure notification", map[string]interface{}{
			"runId": res.RunID,
			"error": apperrors.Normalize(err).Error(),
		})
		return
	}
	e.deps.Logger.Info("Sent failure notification", map[string]interface{}{
		"runId":     res.RunID,
		"messageId": id,
		"failed":    len(notice.Failed),
	})
}
