package updatemapfile

import (
	"context"

	"geomet-mapfile/internal/mapfile/patcher"
)

type Input struct {
	// Layer limits the update to one layer; empty updates every mapfile.
	Layer string `json:"layer,omitempty"`
}

type Output struct {
	Patched   int `json:"mapfilePatched"`
	Unchanged int `json:"mapfileUnchanged"`
	NoOp      int `json:"mapfileNoOp"`
	Invalid   int `json:"mapfileInvalid"`
	Missing   int `json:"mapfileMissing"`
}

// Updater is satisfied by *engine.Engine.
type Updater interface {
	Update(ctx context.Context, layer string) (*patcher.Report, error)
}
