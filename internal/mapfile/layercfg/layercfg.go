// Package layercfg loads the layer catalogue (geomet-weather.yml): the
// service metadata section and the ordered set of layer definitions.
package layercfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/common/validation"
)

// Scalar captures any YAML scalar as its literal text.
type Scalar string

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// Text is a bilingual value.
type Text struct {
	EN string `yaml:"en"`
	FR string `yaml:"fr"`
}

// Get returns the value for lang ("en" or "fr").
func (t Text) Get(lang string) string {
	if lang == "fr" {
		return t.FR
	}
	return t.EN
}

// KeywordSet is a bilingual keyword list.
type KeywordSet struct {
	EN []string `yaml:"en"`
	FR []string `yaml:"fr"`
}

func (k KeywordSet) Get(lang string) []string {
	if lang == "fr" {
		return k.FR
	}
	return k.EN
}

// ServiceMetadata is the top-level metadata section used for MAP.WEB.METADATA.
type ServiceMetadata struct {
	Identification struct {
		Title             Text       `yaml:"title"`
		Abstract          Text       `yaml:"abstract"`
		Keywords          KeywordSet `yaml:"keywords"`
		URL               Text       `yaml:"url"`
		Fees              Scalar     `yaml:"fees"`
		AccessConstraints Scalar     `yaml:"accessconstraints"`
	} `yaml:"identification"`
	Provider struct {
		Name    Text   `yaml:"name"`
		Role    Scalar `yaml:"role"`
		Contact struct {
			Name     Text `yaml:"name"`
			Position Text `yaml:"position"`
			Address  struct {
				DeliveryPoint   Text   `yaml:"delivery_point"`
				City            Text   `yaml:"city"`
				StateOrProvince Text   `yaml:"stateorprovince"`
				PostalCode      Scalar `yaml:"postalcode"`
				Country         Text   `yaml:"country"`
				Email           Scalar `yaml:"email"`
			} `yaml:"address"`
			Phone struct {
				Voice Scalar `yaml:"voice"`
				Fax   Scalar `yaml:"fax"`
			} `yaml:"phone"`
			Hours        Text `yaml:"hours"`
			Instructions Text `yaml:"instructions"`
		} `yaml:"contact"`
		Logo struct {
			Format Scalar `yaml:"format"`
			Width  Scalar `yaml:"width"`
			Height Scalar `yaml:"height"`
			Href   Scalar `yaml:"href"`
		} `yaml:"logo"`
	} `yaml:"provider"`
	Attribution struct {
		Title Text `yaml:"title"`
		URL   Text `yaml:"url"`
	} `yaml:"attribution"`
}

// ForecastModel holds options shared by every layer of one model.
type ForecastModel struct {
	LabelEN                 string   `yaml:"label_en"`
	LabelFR                 string   `yaml:"label_fr"`
	Projection              string   `yaml:"projection"`
	Extent                  Scalar   `yaml:"extent"`
	Dimensions              []Scalar `yaml:"dimensions"`
	Processing              []string `yaml:"processing"`
	Metadata                []string `yaml:"metadata"`
	MCF                     string   `yaml:"mcf"`
	ForecastHourInterval    *int     `yaml:"forecast_hour_interval"`
	ObservationsIntervalMin *int     `yaml:"observations_interval_min"`
	OutputFormats           []string `yaml:"outputformats"`
}

// HasOutputFormats reports whether the model narrows the output format catalogue.
func (m *ForecastModel) HasOutputFormats() bool {
	return m.OutputFormats != nil
}

// Layer is one entry of the catalogue.
type Layer struct {
	Name          string         `yaml:"-"`
	LabelEN       string         `yaml:"label_en"`
	LabelFR       string         `yaml:"label_fr"`
	Type          string         `yaml:"type"`
	ConnType      string         `yaml:"conntype"`
	Styles        []string       `yaml:"styles"`
	Symbols       []string       `yaml:"symbols"`
	Processing    []string       `yaml:"processing"`
	LayerParams   []string       `yaml:"layer_params"`
	Metadata      []string       `yaml:"metadata"`
	ForecastModel *ForecastModel `yaml:"forecast_model"`

	// raw keeps the decoded mapping for schema validation.
	raw map[string]interface{}
}

// HasSymbols reports whether the layer declares a symbol affinity.
func (l *Layer) HasSymbols() bool {
	return l.Symbols != nil
}

// Raw returns the layer as decoded from YAML.
func (l *Layer) Raw() map[string]interface{} {
	return l.raw
}

// Catalogue is the decoded layer configuration. Layers keep file order.
type Catalogue struct {
	Metadata ServiceMetadata
	Layers   []*Layer

	index map[string]int
}

// Lookup returns the named layer.
func (c *Catalogue) Lookup(name string) (*Layer, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.Layers[i], true
}

// Names returns layer names in configuration order.
func (c *Catalogue) Names() []string {
	names := make([]string, len(c.Layers))
	for i, l := range c.Layers {
		names[i] = l.Name
	}
	return names
}

// Select returns every layer, or only the named one.
func (c *Catalogue) Select(name string) ([]*Layer, error) {
	if name == "" {
		return c.Layers, nil
	}
	l, ok := c.Lookup(name)
	if !ok {
		return nil, apperrors.NewLayerNotFoundError(name)
	}
	return []*Layer{l}, nil
}

// Load reads and decodes the catalogue at path.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewTemplateLoadFailedError(path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, apperrors.NewTemplateLoadFailedError(path, err)
	}
	return cat, nil
}

// Parse decodes catalogue YAML. The layers mapping is walked node by node
// so that declaration order survives decoding.
func Parse(data []byte) (*Catalogue, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode layer configuration: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("decode layer configuration: empty document")
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode layer configuration: expected a mapping at the top level")
	}

	cat := &Catalogue{index: make(map[string]int)}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, val := doc.Content[i], doc.Content[i+1]
		switch key.Value {
		case "metadata":
			if err := val.Decode(&cat.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata section: %w", err)
			}
		case "layers":
			if err := cat.decodeLayers(resolveAlias(val)); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}

func (c *Catalogue) decodeLayers(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("decode layers: line %d: expected a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]

		layer := &Layer{Name: name}
		if err := val.Decode(layer); err != nil {
			return fmt.Errorf("decode layer %s: %w", name, err)
		}
		if err := val.Decode(&layer.raw); err != nil {
			return fmt.Errorf("decode layer %s: %w", name, err)
		}
		if _, dup := c.index[name]; dup {
			return fmt.Errorf("decode layers: duplicate layer %s", name)
		}
		c.index[name] = len(c.Layers)
		c.Layers = append(c.Layers, layer)
	}
	return nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

const layerSchema = `{
  "type": "object",
  "required": ["styles", "forecast_model"],
  "properties": {
    "label_en": {"type": "string"},
    "label_fr": {"type": "string"},
    "type": {"type": "string"},
    "conntype": {"type": "string"},
    "styles": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "symbols": {"type": "array", "items": {"type": "string"}},
    "processing": {"type": "array", "items": {"type": "string"}},
    "layer_params": {"type": "array", "items": {"type": "string", "pattern": "^\\S+\\s+\\S+$"}},
    "metadata": {"type": "array", "items": {"type": "string", "pattern": "^[^=]+=.*$"}},
    "forecast_model": {
      "type": "object",
      "required": ["projection"],
      "properties": {
        "projection": {"type": "string", "minLength": 1},
        "mcf": {"type": "string"},
        "processing": {"type": "array", "items": {"type": "string"}},
        "metadata": {"type": "array", "items": {"type": "string", "pattern": "^[^=]+=.*$"}},
        "dimensions": {"type": "array", "minItems": 2},
        "forecast_hour_interval": {"type": "integer"},
        "observations_interval_min": {"type": "integer"},
        "outputformats": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

var layerValidator = validation.MustSchemaValidator(layerSchema)

// Validate checks a layer definition, returning a CONFIGURATION_ERROR that
// lists every violation.
func (l *Layer) Validate() error {
	doc := l.raw
	if doc == nil {
		doc = map[string]interface{}{}
	}
	res := layerValidator.Validate(doc)
	if res.Valid {
		return nil
	}
	return apperrors.NewConfigurationError(l.Name, res.Summary())
}
