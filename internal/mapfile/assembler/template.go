package assembler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/mapfile/interval"
	"geomet-mapfile/internal/mapfile/layercfg"
	"geomet-mapfile/internal/mapfile/mapscript"
)

// serviceMaxAge is the HTTP cache lifetime of capabilities documents (one week).
const serviceMaxAge = 604800

// LoadTemplate reads the base MAP document and its symbol set.
func LoadTemplate(basePath, symbolsPath string) (*mapscript.Object, error) {
	data, err := os.ReadFile(basePath)
	if err != nil {
		return nil, apperrors.NewTemplateLoadFailedError(basePath, err)
	}
	base, err := mapscript.FromJSON(data)
	if err != nil {
		return nil, apperrors.NewTemplateLoadFailedError(basePath, err)
	}
	if base.Type == "" {
		base.Type = "MAP"
	}

	if symbolsPath != "" {
		data, err := os.ReadFile(symbolsPath)
		if err != nil {
			return nil, apperrors.NewTemplateLoadFailedError(symbolsPath, err)
		}
		symbols, err := mapscript.ObjectsFromJSON(data, "symbol")
		if err != nil {
			return nil, apperrors.NewTemplateLoadFailedError(symbolsPath, err)
		}
		base.Set("symbols", symbols)
	}
	return base, nil
}

// prepareBase sets PROJ_LIB and the service-level web metadata.
func prepareBase(base *mapscript.Object, resourcesDir string, md layercfg.ServiceMetadata, url, version string, now time.Time) {
	cfg := base.Table("config")
	if cfg == nil {
		cfg = mapscript.NewTable()
		base.Set("config", cfg)
	}
	cfg.Set("proj_lib", filepath.Join(resourcesDir, "mapserv"))

	web := base.Child("web")
	if web == nil {
		web = mapscript.NewObject("web")
		base.Set("web", web)
	}
	web.Set("metadata", WebMetadata(base, md, url, version, now))
}

// WebMetadata builds MAP.WEB.METADATA from the catalogue's service section.
func WebMetadata(base *mapscript.Object, c layercfg.ServiceMetadata, url, version string, now time.Time) *mapscript.Table {
	id := c.Identification
	p := c.Provider
	contact := p.Contact

	srs := ""
	if web := base.Child("web"); web != nil {
		if md := web.Table("metadata"); md != nil {
			srs, _ = md.Get("ows_srs")
		}
	}

	d := mapscript.TableOf(
		"ows_keywordlist_vocabulary", "http://purl.org/dc/terms/",
		"ows_fees", string(id.Fees),
		"ows_accessconstraints", string(id.AccessConstraints),
		"wms_getmap_formatlist", "image/png,image/jpeg",
		"ows_extent", extentString(base),
		"ows_role", string(p.Role),
		"ows_http_max_age", strconv.Itoa(serviceMaxAge),
		"ows_updatesequence", interval.FormatTime(now),
		"encoding", "UTF-8",
		"ows_srs", srs,
		"ows_addresstype", "postal",
		"ows_postcode", string(contact.Address.PostalCode),
		"ows_contactelectronicmailaddress", string(contact.Address.Email),
		"ows_contactvoicetelephone", string(contact.Phone.Voice),
		"ows_contactfacsimiletelephone", string(contact.Phone.Fax),
		"wms_enable_request", "*",
		"wms_getfeatureinfo_formatlist", "text/plain,application/json,application/vnd.ogc.gml",
		"wms_attribution_logourl_format", string(p.Logo.Format),
		"wms_attribution_logourl_width", string(p.Logo.Width),
		"wms_attribution_logourl_height", string(p.Logo.Height),
		"wms_attribution_logourl_href", string(p.Logo.Href),
		"wcs_enable_request", "*",
	)

	for _, lang := range []string{"en", "fr"} {
		sfx := ""
		if lang == "fr" {
			sfx = "_fr"
			d.Set("ows_onlineresource_fr", url+"?lang=fr")
		} else {
			d.Set("ows_onlineresource", url)
		}

		keywords := strings.Join(id.Keywords.Get(lang), ",")
		title := strings.TrimSpace(id.Title.Get(lang) + " " + version)

		d.Set("ows_address"+sfx, contact.Address.DeliveryPoint.Get(lang))
		d.Set("ows_keywordlist_http://purl.org/dc/terms/_items"+sfx, keywords)
		d.Set("ows_contactinstructions"+sfx, contact.Instructions.Get(lang))
		d.Set("ows_contactperson"+sfx, contact.Name.Get(lang))
		d.Set("ows_contactposition"+sfx, contact.Position.Get(lang))
		d.Set("ows_contactorganization"+sfx, p.Name.Get(lang))
		d.Set("ows_abstract"+sfx, id.Abstract.Get(lang))
		d.Set("ows_service_onlineresource"+sfx, id.URL.Get(lang))
		d.Set("ows_title"+sfx, title)
		d.Set("wcs_label"+sfx, title)
		d.Set("ows_hoursofservice"+sfx, contact.Hours.Get(lang))
		d.Set("ows_stateorprovince"+sfx, contact.Address.StateOrProvince.Get(lang))
		d.Set("ows_city"+sfx, contact.Address.City.Get(lang))
		d.Set("ows_country"+sfx, contact.Address.Country.Get(lang))
		d.Set("wms_attribution_title"+sfx, c.Attribution.Title.Get(lang))
		d.Set("wms_attribution_onlineresource"+sfx, c.Attribution.URL.Get(lang))
		d.Set("wcs_description"+sfx, id.Abstract.Get(lang))
		d.Set("ows_keywordlist"+sfx, keywords)
	}
	return d
}

func extentString(base *mapscript.Object) string {
	v, ok := base.Get("extent")
	if !ok {
		return ""
	}
	switch e := v.(type) {
	case []float64:
		parts := make([]string, len(e))
		for i, f := range e {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case string:
		return strings.Join(strings.Fields(e), ",")
	}
	return fmt.Sprint(v)
}

// narrow restricts a document to the output formats and symbols referenced
// by layers. A layer without an output format list keeps every format.
func narrow(doc *mapscript.Object, layers ...*layercfg.Layer) {
	keep := map[string]bool{}
	restrict := len(layers) > 0
	var wanted []string
	for _, layer := range layers {
		if layer.ForecastModel != nil && layer.ForecastModel.HasOutputFormats() {
			for _, f := range layer.ForecastModel.OutputFormats {
				keep[f] = true
			}
		} else {
			restrict = false
		}
		if layer.HasSymbols() {
			wanted = append(wanted, layer.Symbols...)
		}
	}

	if restrict {
		formats := []*mapscript.Object{}
		for _, f := range doc.Objects("outputformats") {
			if keep[f.String("name")] {
				formats = append(formats, f)
			}
		}
		doc.Set("outputformats", formats)
	}

	symbols := []*mapscript.Object{}
	for _, s := range doc.Objects("symbols") {
		if symbolWanted(s.String("name"), wanted) {
			symbols = append(symbols, s)
		}
	}
	doc.Set("symbols", symbols)
}

func symbolWanted(name string, wanted []string) bool {
	for _, w := range wanted {
		if name == w || strings.Contains(name, w) {
			return true
		}
	}
	return false
}
