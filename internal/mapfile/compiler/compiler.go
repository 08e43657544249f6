// Package compiler turns one layer definition plus its resolved temporal
// state into the LAYER blocks of a mapfile.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/logger"
	"geomet-mapfile/internal/mapfile/layercfg"
	"geomet-mapfile/internal/mapfile/mapscript"
	"geomet-mapfile/internal/mapfile/mcf"
	"geomet-mapfile/internal/mapfile/temporal"
)

const (
	defaultLayerType = "RASTER"
	tileItem         = "properties.filepath"
)

// Options locates the resources a layer refers to.
type Options struct {
	// ResourcesDir holds projection files and style files.
	ResourcesDir string
	// MetadataURL is the catalogue endpoint for ows_metadataurl_href.
	MetadataURL string
	// TileIndexURL enables companion tile index layers when set.
	TileIndexURL  string
	TileIndexType string
}

// Record is the compiled output of one layer.
type Record struct {
	Name      string
	Layer     *mapscript.Object
	TileIndex *mapscript.Object
}

// Objects returns the LAYER blocks in mapfile order: the tile index layer
// must precede the layer that references it.
func (r *Record) Objects() []*mapscript.Object {
	if r.TileIndex != nil {
		return []*mapscript.Object{r.TileIndex, r.Layer}
	}
	return []*mapscript.Object{r.Layer}
}

// Compiler is safe for concurrent use. Style files are decoded once.
type Compiler struct {
	opts   Options
	mcf    *mcf.Reader
	logger logger.Logger

	mu     sync.Mutex
	styles map[string][]*mapscript.Object
	projs  map[string]mapscript.Lines
}

func NewCompiler(opts Options, reader *mcf.Reader, log logger.Logger) *Compiler {
	if opts.MetadataURL == "" {
		opts.MetadataURL = mcf.CSWBase
	}
	if opts.TileIndexType == "" {
		opts.TileIndexType = "OGR"
	}
	return &Compiler{
		opts:   opts,
		mcf:    reader,
		logger: log,
		styles: make(map[string][]*mapscript.Object),
		projs:  make(map[string]mapscript.Lines),
	}
}

// Compile builds the LAYER object(s) of name. A nil resolved omits every
// temporal metadata key.
func (c *Compiler) Compile(name string, layer *layercfg.Layer, resolved *temporal.Resolved) (*Record, error) {
	if err := checkMandatory(name, layer); err != nil {
		return nil, err
	}
	model := layer.ForecastModel

	c.logger.Debug("Compiling layer", map[string]interface{}{"layer": name})

	obj := mapscript.NewObject("layer")
	obj.Set("tolerance", 15)
	obj.Set("template", "ttt.html")
	obj.Set("name", name)
	obj.Set("debug", 5)
	obj.Set("data", []string{""})
	obj.Set("type", defaultLayerType)
	obj.Set("metadata", mapscript.NewTable())

	rec := &Record{Name: name, Layer: obj}

	if c.wantsTileIndex(layer) {
		rec.TileIndex = c.tileIndex(name)
		obj.Set("tileindex", rec.TileIndex.String("name"))
		obj.Set("tileitem", tileItem)
	}

	proj, err := c.projection(model.Projection)
	if err != nil {
		return nil, apperrors.NewConfigurationError(name, err.Error())
	}
	obj.Set("projection", proj)

	processing := append(append([]string(nil), layer.Processing...), model.Processing...)
	if len(processing) > 0 {
		obj.Set("processing", processing)
	}

	if layer.Type != "" {
		obj.Set("type", layer.Type)
	}

	if layer.ConnType != "" {
		obj.Set("connectiontype", layer.ConnType)
		if strings.EqualFold(layer.ConnType, "uvraster") && model.Extent != "" {
			extent, err := parseExtent(string(model.Extent))
			if err != nil {
				return nil, apperrors.NewConfigurationError(name, err.Error())
			}
			obj.Set("extent", extent)
		}
	}

	for _, p := range layer.LayerParams {
		parts := strings.Fields(p)
		if len(parts) != 2 {
			return nil, apperrors.NewConfigurationError(name, fmt.Sprintf("layer_params entry %q is not a \"param value\" pair", p))
		}
		obj.Set(parts[0], paramValue(parts[1]))
	}

	if err := c.applyStyles(obj, layer.Styles); err != nil {
		return nil, apperrors.NewConfigurationError(name, err.Error())
	}

	overlays, err := c.Overlays(name, layer, resolved)
	if err != nil {
		return nil, err
	}
	obj.Set("metadata", Fold(overlays...))

	return rec, nil
}

// Overlays returns the named metadata sources of a layer in precedence order.
func (c *Compiler) Overlays(name string, layer *layercfg.Layer, resolved *temporal.Resolved) ([]Overlay, error) {
	if err := checkMandatory(name, layer); err != nil {
		return nil, err
	}
	model := layer.ForecastModel

	discovery, err := c.discovery(model.MCF)
	if err != nil {
		return nil, apperrors.NewConfigurationError(name, err.Error())
	}
	modelMD, err := pairs(model.Metadata)
	if err != nil {
		return nil, apperrors.NewConfigurationError(name, "forecast_model metadata: "+err.Error())
	}
	layerMD, err := pairs(layer.Metadata)
	if err != nil {
		return nil, apperrors.NewConfigurationError(name, "metadata: "+err.Error())
	}

	return []Overlay{
		{Name: OverlayDefaults, Entries: defaults(layer)},
		{Name: OverlayForecastModel, Entries: modelMD},
		{Name: OverlayLayer, Entries: layerMD},
		{Name: OverlayDiscovery, Entries: discovery},
		{Name: OverlayTemporal, Entries: temporalMetadata(resolved)},
		{Name: OverlayCaching, Entries: caching(model)},
		{Name: OverlayGeneric, Entries: generic()},
	}, nil
}

func checkMandatory(name string, layer *layercfg.Layer) error {
	switch {
	case layer == nil:
		return apperrors.NewConfigurationError(name, "layer definition is empty")
	case len(layer.Styles) == 0:
		return apperrors.NewConfigurationError(name, "styles must not be empty")
	case layer.ForecastModel == nil:
		return apperrors.NewConfigurationError(name, "forecast_model is required")
	case layer.ForecastModel.Projection == "":
		return apperrors.NewConfigurationError(name, "forecast_model.projection is required")
	}
	return nil
}

func (c *Compiler) wantsTileIndex(layer *layercfg.Layer) bool {
	if c.opts.TileIndexURL == "" {
		return false
	}
	if layer.Type == "" || strings.EqualFold(layer.Type, "raster") {
		return true
	}
	switch strings.ToLower(layer.ConnType) {
	case "uvraster", "contour":
		return true
	}
	return false
}

func (c *Compiler) tileIndex(name string) *mapscript.Object {
	idx := mapscript.NewObject("layer")
	idx.Set("name", name+"_idx")
	idx.Set("type", "POLYGON")
	idx.Set("status", "OFF")
	idx.Set("connectiontype", c.opts.TileIndexType)
	idx.Set("connection", c.opts.TileIndexURL)
	idx.Set("metadata", mapscript.TableOf("ows_enable_request", "!*"))
	idx.Set("filter", "")
	return idx
}

func (c *Compiler) resource(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(c.opts.ResourcesDir, ref)
}

// projection reads a projection file: one entry per line, quotes dropped.
func (c *Compiler) projection(ref string) (mapscript.Lines, error) {
	path := c.resource(ref)

	c.mu.Lock()
	cached, ok := c.projs[path]
	c.mu.Unlock()
	if ok {
		return append(mapscript.Lines(nil), cached...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projection: %w", err)
	}

	var lines mapscript.Lines
	for _, l := range strings.SplitAfter(string(data), "\n") {
		if l == "" {
			continue
		}
		l = strings.ReplaceAll(strings.TrimRight(l, "\r\n"), `"`, "")
		lines = append(lines, l)
	}

	c.mu.Lock()
	c.projs[path] = lines
	c.mu.Unlock()
	return append(mapscript.Lines(nil), lines...), nil
}

// applyStyles sets classgroup and either CLASS blocks (JSON styles) or
// INCLUDE references (mapfile fragments).
func (c *Compiler) applyStyles(obj *mapscript.Object, styles []string) error {
	first := filepath.Base(filepath.FromSlash(styles[0]))
	obj.Set("classgroup", strings.TrimSuffix(first, filepath.Ext(first)))

	var (
		classes  []*mapscript.Object
		includes []string
	)
	for _, style := range styles {
		if !strings.EqualFold(filepath.Ext(style), ".json") {
			includes = append(includes, c.resource(style))
			continue
		}
		cls, err := c.classes(style)
		if err != nil {
			return err
		}
		classes = append(classes, cls...)
	}

	if len(classes) > 0 {
		obj.Set("classes", classes)
	}
	if len(includes) > 0 {
		obj.Set("include", includes)
	}
	return nil
}

// classes returns fresh copies of the CLASS blocks of a style file.
func (c *Compiler) classes(style string) ([]*mapscript.Object, error) {
	path := c.resource(style)

	c.mu.Lock()
	cached, ok := c.styles[path]
	c.mu.Unlock()

	if !ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read style: %w", err)
		}
		cached, err = mapscript.ObjectsFromJSON(data, "class")
		if err != nil {
			return nil, fmt.Errorf("style %s: %w", style, err)
		}
		c.mu.Lock()
		c.styles[path] = cached
		c.mu.Unlock()
	}

	out := make([]*mapscript.Object, len(cached))
	for i, o := range cached {
		out[i] = o.Clone()
	}
	return out, nil
}

func (c *Compiler) discovery(ref string) (*mapscript.Table, error) {
	if ref == "" || c.mcf == nil {
		return nil, nil
	}
	rec, err := c.mcf.Read(ref)
	if err != nil {
		return nil, fmt.Errorf("discovery metadata: %w", err)
	}
	return mapscript.TableOf(
		"ows_abstract", rec.AbstractEN,
		"ows_abstract_fr", rec.AbstractFR,
		"ows_keywordlist", strings.Join(rec.KeywordsEN, ", "),
		"ows_keywordlist_fr", strings.Join(rec.KeywordsFR, ", "),
		"ows_identifier_value", rec.DatasetURI,
		"ows_metadataurl_href", rec.MetadataURL(c.opts.MetadataURL),
	), nil
}

func defaults(layer *layercfg.Layer) *mapscript.Table {
	model := layer.ForecastModel
	t := mapscript.TableOf(
		"gml_include_items", "all",
		"ows_include_items", "all",
		"ows_extent", string(model.Extent),
		"ows_title", layer.LabelEN,
		"ows_title_fr", layer.LabelFR,
		"wms_layer_group", "/"+model.LabelEN,
		"wms_layer_group_fr", "/"+model.LabelFR,
		"wcs_label", layer.LabelEN,
		"wcs_label_fr", layer.LabelFR,
	)
	if len(model.Dimensions) >= 2 {
		t.Set("ows_size", fmt.Sprintf("%s %s", model.Dimensions[0], model.Dimensions[1]))
	}
	return t
}

func temporalMetadata(r *temporal.Resolved) *mapscript.Table {
	if r == nil {
		return nil
	}
	t := mapscript.TableOf(
		"wms_dimensionlist", "reference_time",
		"wms_reference_time_item", "reference_datetime",
		"wms_reference_time_units", "ISO8601",
		"wms_timeextent", r.TimeExtent,
		"wms_reference_time_default", r.DefaultModelRun,
		"wms_timedefault", r.DefaultTime,
	)
	if len(r.AvailableIntervals) > 0 {
		t.Set("wms_available_intervals", temporal.FormatIntervals(r.AvailableIntervals))
	}
	if r.DefaultModelRun != "" {
		t.Set("wms_reference_time_extent", r.ModelRunExtent)
	}
	return t
}

func caching(model *layercfg.ForecastModel) *mapscript.Table {
	maxAge := ""
	switch {
	case model.ForecastHourInterval != nil:
		maxAge = strconv.Itoa(*model.ForecastHourInterval * 3600)
	case model.ObservationsIntervalMin != nil:
		maxAge = strconv.Itoa(*model.ObservationsIntervalMin * 60)
	}
	return mapscript.TableOf("geomet_ows_http_max_age", maxAge)
}

func generic() *mapscript.Table {
	return mapscript.TableOf(
		"gml_include_items", "all",
		"ows_authorityurl_name", "msc",
		"ows_authorityurl_href", "https://dd.weather.gc.ca",
		"ows_identifier_authority", "msc",
		"ows_include_items", "all",
		"ows_keywordlist_vocabulary", "http://purl.org/dc/terms/",
		"ows_geomtype", "Geometry",
		"ows_metadataurl_format", "text/xml",
		"ows_metadataurl_type", "TC211",
		"wcs_rangeset_name", "default range",
		"wcs_rangeset_label", "default range",
		"wfs_metadataurl_format", "XML",
	)
}

// pairs parses "key=value" entries.
func pairs(entries []string) (*mapscript.Table, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	t := mapscript.NewTable()
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("entry %q is not key=value", e)
		}
		t.Set(k, v)
	}
	return t, nil
}

func parseExtent(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 4 {
		return nil, fmt.Errorf("extent %q must have four values", s)
	}
	out := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("extent %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func paramValue(v string) interface{} {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return mapscript.Number(v)
	}
	return v
}
