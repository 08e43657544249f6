package compiler

import (
	"geomet-mapfile/internal/mapfile/mapscript"
)

// Overlay names, in the order Compile applies them.
const (
	OverlayDefaults      = "defaults"
	OverlayForecastModel = "forecast_model"
	OverlayLayer         = "layer"
	OverlayDiscovery     = "discovery"
	OverlayTemporal      = "temporal"
	OverlayCaching       = "caching"
	OverlayGeneric       = "generic"
)

// Overlay is one named source of layer metadata.
type Overlay struct {
	Name    string
	Entries *mapscript.Table
}

// Fold merges overlays left to right; a later overlay wins on key collision.
// A key keeps the position of its first appearance. Nil overlays are skipped.
func Fold(overlays ...Overlay) *mapscript.Table {
	out := mapscript.NewTable()
	for _, o := range overlays {
		if o.Entries == nil {
			continue
		}
		out.Merge(o.Entries)
	}
	return out
}

// Provenance reports which overlay supplied the final value of each key.
func Provenance(overlays ...Overlay) map[string]string {
	src := make(map[string]string)
	for _, o := range overlays {
		if o.Entries == nil {
			continue
		}
		for _, k := range o.Entries.Keys() {
			src[k] = o.Name
		}
	}
	return src
}
