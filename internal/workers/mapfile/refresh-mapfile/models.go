package refreshmapfile

import (
	"context"

	"geomet-mapfile/internal/common/config"
	"geomet-mapfile/internal/mapfile/engine"
)

// Input are the job variables. Every field is optional.
type Input struct {
	Layer  string `json:"layer,omitempty"`
	Output string `json:"output,omitempty"` // "file" or "store"
	Mode   string `json:"mode,omitempty"`   // "include" or "monolithic"
	Strict *bool  `json:"strict,omitempty"`
}

type Output struct {
	RunID        string   `json:"mapfileRunId"`
	Layers       []string `json:"mapfileLayers"`
	FailedLayers []string `json:"mapfileFailedLayers"`
	Complete     bool     `json:"mapfileComplete"`
	Files        int      `json:"mapfileFiles"`
	Keys         int      `json:"mapfileKeys"`
}

// Generator is satisfied by *engine.Engine.
type Generator interface {
	Generate(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error)
}

var (
	validOutputs = map[string]bool{"": true, config.StorageFile: true, config.StorageStore: true}
	validModes   = map[string]bool{"": true, config.ModeInclude: true, config.ModeMonolithic: true}
)
