// Package mcf reads discovery metadata (MCF) files into the flat record the
// layer compiler needs.
package mcf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CSWBase is the catalogue endpoint layer metadata URLs point at.
const CSWBase = "https://csw.open.canada.ca/geonetwork/srv/csw"

// Record is the subset of an MCF used for layer metadata.
type Record struct {
	AbstractEN string
	AbstractFR string
	KeywordsEN []string
	KeywordsFR []string
	DatasetURI string
	Identifier string
}

// MetadataURL builds the GetRecordById URL of the record on the catalogue at base.
func (r *Record) MetadataURL(base string) string {
	q := url.Values{}
	q.Set("service", "CSW")
	q.Set("version", "2.0.2")
	q.Set("request", "GetRecordById")
	q.Set("outputschema", "csw:IsoRecord")
	q.Set("elementsetname", "full")
	q.Set("id", r.Identifier)
	return strings.TrimSuffix(base, "?") + "?" + q.Encode()
}

// bilingual accepts either {en: ..., fr: ...} or a plain scalar used for both.
type bilingual struct {
	EN string
	FR string
}

func (b *bilingual) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		b.EN, b.FR = node.Value, node.Value
		return nil
	}
	var m struct {
		EN string `yaml:"en"`
		FR string `yaml:"fr"`
	}
	if err := node.Decode(&m); err != nil {
		return err
	}
	b.EN, b.FR = m.EN, m.FR
	return nil
}

type keywordGroup struct {
	Keywords struct {
		EN []string `yaml:"en"`
		FR []string `yaml:"fr"`
	} `yaml:"keywords"`
	KeywordsEN []string `yaml:"keywords_en"`
	KeywordsFR []string `yaml:"keywords_fr"`
}

func (g keywordGroup) en() []string {
	if len(g.Keywords.EN) > 0 {
		return g.Keywords.EN
	}
	return g.KeywordsEN
}

func (g keywordGroup) fr() []string {
	if len(g.Keywords.FR) > 0 {
		return g.Keywords.FR
	}
	return g.KeywordsFR
}

type document struct {
	Identification struct {
		Abstract   bilingual               `yaml:"abstract"`
		AbstractEN string                  `yaml:"abstract_en"`
		AbstractFR string                  `yaml:"abstract_fr"`
		Keywords   map[string]keywordGroup `yaml:"keywords"`
	} `yaml:"identification"`
	Metadata struct {
		Identifier string `yaml:"identifier"`
		DatasetURI string `yaml:"dataseturi"`
	} `yaml:"metadata"`
}

// Parse decodes MCF YAML. The default keyword group comes first, followed by
// the gc_cst group when present.
func Parse(data []byte) (*Record, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode MCF: %w", err)
	}

	id := doc.Identification
	rec := &Record{
		AbstractEN: firstNonEmpty(id.Abstract.EN, id.AbstractEN),
		AbstractFR: firstNonEmpty(id.Abstract.FR, id.AbstractFR),
		DatasetURI: doc.Metadata.DatasetURI,
		Identifier: doc.Metadata.Identifier,
	}

	def, ok := id.Keywords["default"]
	if !ok {
		return nil, fmt.Errorf("decode MCF: identification.keywords.default is missing")
	}
	rec.KeywordsEN = append(rec.KeywordsEN, def.en()...)
	rec.KeywordsFR = append(rec.KeywordsFR, def.fr()...)

	if cst, ok := id.Keywords["gc_cst"]; ok {
		rec.KeywordsEN = append(rec.KeywordsEN, cst.en()...)
		rec.KeywordsFR = append(rec.KeywordsFR, cst.fr()...)
	}

	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Reader loads MCF files relative to a directory. Parsed records are kept
// for the lifetime of the reader since many layers share one file.
type Reader struct {
	dir string

	mu      sync.Mutex
	records map[string]*Record
}

func NewReader(dir string) *Reader {
	return &Reader{dir: dir, records: make(map[string]*Record)}
}

// Path resolves a layer's MCF reference.
func (r *Reader) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.dir, name)
}

// Read returns the record of the MCF file name.
func (r *Reader) Read(name string) (*Record, error) {
	path := r.Path(name)

	r.mu.Lock()
	rec, ok := r.records[path]
	r.mu.Unlock()
	if ok {
		return rec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err = Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r.mu.Lock()
	r.records[path] = rec
	r.mu.Unlock()
	return rec, nil
}
