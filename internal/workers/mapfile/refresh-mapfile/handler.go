package refreshmapfile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"geomet-mapfile/internal/common/config"
	"geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/common/metrics"
	"geomet-mapfile/internal/mapfile/engine"
)

const TaskType = "refresh-mapfile"

type Handler struct {
	config    *Config
	logger    logger.Logger
	generator Generator
	errors    *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	Generator    Generator
	CustomConfig *Config
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("%s requires a generator", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:    cfg,
		logger:    log,
		generator: opts.Generator,
		errors:    errors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing mapfile refresh", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err == nil {
		var output *Output
		output, err = h.Execute(ctx, input)
		if err == nil {
			h.completeJob(ctx, client, job, output)
			metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
			return
		}
	}

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if vars := job.GetVariables(); vars != "" {
		if err := json.Unmarshal([]byte(vars), &input); err != nil {
			return nil, errors.NewInvalidJobVariablesError(err)
		}
	}
	if !validOutputs[input.Output] {
		return nil, errors.NewInvalidJobVariablesError(fmt.Errorf("unknown output %q", input.Output))
	}
	if !validModes[input.Mode] {
		return nil, errors.NewInvalidJobVariablesError(fmt.Errorf("unknown mode %q", input.Mode))
	}
	return &input, nil
}

// Execute regenerates the requested mapfiles.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.generator.Generate(ctx, engine.GenerateRequest{
		Layer:   input.Layer,
		Storage: input.Output,
		Mode:    input.Mode,
		Strict:  input.Strict,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		RunID:        res.RunID,
		Layers:       make([]string, 0, len(res.Fragments)),
		FailedLayers: res.FailedLayers(),
		Complete:     res.OK,
	}
	for _, f := range res.Fragments {
		out.Layers = append(out.Layers, f.Layer)
	}
	if res.Published != nil {
		out.Files = len(res.Published.Files)
		out.Keys = len(res.Published.Keys)
	}

	if !res.OK && h.config.FailOnIncomplete {
		return nil, errors.NewGenerationIncompleteError(out.FailedLayers)
	}
	return out, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	h.logger.Info("Mapfile refresh completed", map[string]interface{}{
		"jobKey":   job.GetKey(),
		"runId":    output.RunID,
		"layers":   len(output.Layers),
		"failed":   len(output.FailedLayers),
		"complete": output.Complete,
	})
}
