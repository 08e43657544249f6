package mapscript

import (
	"bytes"
	"io"
	"strconv"
	"strings"
)

const indentUnit = "    "

// bareKeys hold enumerated values that MapServer expects unquoted.
var bareKeys = map[string]bool{
	"type":           true,
	"status":         true,
	"units":          true,
	"sizeunits":      true,
	"connectiontype": true,
	"imagemode":      true,
	"transparent":    true,
	"position":       true,
	"align":          true,
	"antialias":      true,
	"force":          true,
	"partials":       true,
	"postlabelcache": true,
	"labelcache":     true,
	"filled":         true,
	"linecap":        true,
	"linejoin":       true,
	"dump":           true,
	"template_mode":  true,
}

// expressionKeys may carry logical, regex or list expressions.
var expressionKeys = map[string]bool{
	"expression":    true,
	"filter":        true,
	"text":          true,
	"requires":      true,
	"labelrequires": true,
}

// Encoder writes mapfile text.
type Encoder struct {
	w      io.Writer
	indent string
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, indent: indentUnit}
}

// SetIndent changes the indentation unit.
func (e *Encoder) SetIndent(indent string) {
	e.indent = indent
}

// Encode writes each object as a top-level block.
func (e *Encoder) Encode(objs ...*Object) error {
	var buf bytes.Buffer
	for _, o := range objs {
		e.writeObject(&buf, o.Type, o, 0)
	}
	_, err := e.w.Write(buf.Bytes())
	return err
}

// Marshal renders objects as mapfile text.
func Marshal(objs ...*Object) []byte {
	var buf bytes.Buffer
	_ = NewEncoder(&buf).Encode(objs...)
	return buf.Bytes()
}

func (e *Encoder) pad(depth int) string {
	return strings.Repeat(e.indent, depth)
}

func (e *Encoder) writeObject(buf *bytes.Buffer, typ string, o *Object, depth int) {
	if o.Type != "" {
		typ = o.Type
	}
	buf.WriteString(e.pad(depth) + strings.ToUpper(typ) + "\n")
	for _, f := range o.fields {
		e.writeField(buf, f.Key, f.Value, depth+1)
	}
	buf.WriteString(e.pad(depth) + "END\n")
}

func (e *Encoder) writeField(buf *bytes.Buffer, key string, value interface{}, depth int) {
	kw := strings.ToUpper(key)
	pad := e.pad(depth)

	switch v := value.(type) {
	case nil:
		return
	case *Object:
		e.writeObject(buf, singular(key), v, depth)
	case []*Object:
		for _, o := range v {
			e.writeObject(buf, singular(key), o, depth)
		}
	case *Table:
		if kw == "CONFIG" {
			for _, k := range v.keys {
				buf.WriteString(pad + kw + " " + quote(k) + " " + quote(v.values[k]) + "\n")
			}
			return
		}
		buf.WriteString(pad + kw + "\n")
		for _, k := range v.keys {
			buf.WriteString(pad + e.indent + quote(k) + " " + quote(v.values[k]) + "\n")
		}
		buf.WriteString(pad + "END\n")
	case Lines:
		buf.WriteString(pad + kw + "\n")
		for _, line := range v {
			buf.WriteString(pad + e.indent + quote(line) + "\n")
		}
		buf.WriteString(pad + "END\n")
	case NumberBlock:
		buf.WriteString(pad + kw + "\n")
		for i := 0; i < len(v); i += 2 {
			buf.WriteString(pad + e.indent + formatFloat(v[i]))
			if i+1 < len(v) {
				buf.WriteString(" " + formatFloat(v[i+1]))
			}
			buf.WriteString("\n")
		}
		buf.WriteString(pad + "END\n")
	case []string:
		for _, s := range v {
			buf.WriteString(pad + kw + " " + e.scalar(key, s) + "\n")
		}
	case []float64:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = formatFloat(n)
		}
		buf.WriteString(pad + kw + " " + strings.Join(parts, " ") + "\n")
	default:
		buf.WriteString(pad + kw + " " + e.scalar(key, v) + "\n")
	}
}

func (e *Encoder) scalar(key string, value interface{}) string {
	switch v := value.(type) {
	case string:
		if bareKeys[key] && v != "" {
			return strings.ToUpper(v)
		}
		if isBareLiteral(key, v) {
			return v
		}
		return quote(v)
	case Keyword:
		return string(v)
	case Number:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatFloat(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	return quote("")
}

// isBareLiteral reports strings that must not be quoted: attribute
// bindings and parenthesized, regex or list expressions.
func isBareLiteral(key, v string) bool {
	if len(v) < 2 {
		return false
	}
	if v[0] == '[' && v[len(v)-1] == ']' {
		return true
	}
	if !expressionKeys[key] {
		return false
	}
	switch {
	case v[0] == '(' && v[len(v)-1] == ')':
		return true
	case v[0] == '{' && v[len(v)-1] == '}':
		return true
	case v[0] == '/' && (v[len(v)-1] == '/' || strings.HasSuffix(v, "/i")):
		return true
	}
	return false
}

func quote(s string) string {
	if strings.Contains(s, `"`) && !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var plurals = map[string]string{
	"layers":        "LAYER",
	"classes":       "CLASS",
	"styles":        "STYLE",
	"labels":        "LABEL",
	"outputformats": "OUTPUTFORMAT",
	"symbols":       "SYMBOL",
	"features":      "FEATURE",
	"joins":         "JOIN",
	"scaletokens":   "SCALETOKEN",
	"composites":    "COMPOSITE",
}

func singular(key string) string {
	if s, ok := plurals[key]; ok {
		return s
	}
	return strings.ToUpper(key)
}

func plural(typ string) string {
	lower := strings.ToLower(typ)
	for p, s := range plurals {
		if s == typ {
			return p
		}
	}
	return lower
}
