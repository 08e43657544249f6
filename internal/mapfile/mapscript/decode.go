package mapscript

import (
	"fmt"
	"strconv"
	"strings"
)

type token struct {
	text   string
	quoted bool
	line   int
}

// SyntaxError reports a mapfile that could not be parsed.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("mapfile syntax error at line %d: %s", e.Line, e.Msg)
}

// blockKeys open a nested block closed by END.
var blockKeys = map[string]bool{
	"MAP":          true,
	"LAYER":        true,
	"CLASS":        true,
	"STYLE":        true,
	"LABEL":        true,
	"WEB":          true,
	"OUTPUTFORMAT": true,
	"SYMBOL":       true,
	"LEGEND":       true,
	"SCALEBAR":     true,
	"QUERYMAP":     true,
	"REFERENCE":    true,
	"FEATURE":      true,
	"LEADER":       true,
	"CLUSTER":      true,
	"GRID":         true,
	"JOIN":         true,
	"COMPOSITE":    true,
	"SCALETOKEN":   true,
}

// repeatedBlocks are collected into a []*Object under their plural key.
var repeatedBlocks = map[string]bool{
	"LAYER":        true,
	"CLASS":        true,
	"STYLE":        true,
	"LABEL":        true,
	"OUTPUTFORMAT": true,
	"SYMBOL":       true,
	"FEATURE":      true,
	"JOIN":         true,
	"COMPOSITE":    true,
	"SCALETOKEN":   true,
}

// repeatedScalars may appear several times in one block.
var repeatedScalars = map[string]bool{
	"PROCESSING":   true,
	"INCLUDE":      true,
	"FORMATOPTION": true,
}

func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '"' || c == '\'':
			start := line
			var sb strings.Builder
			i++
			closed := false
			for i < n {
				ch := src[i]
				if ch == '\\' && i+1 < n && (src[i+1] == c || src[i+1] == '\\') {
					sb.WriteByte(src[i+1])
					i += 2
					continue
				}
				if ch == c {
					closed = true
					i++
					break
				}
				if ch == '\n' {
					line++
				}
				sb.WriteByte(ch)
				i++
			}
			if !closed {
				return nil, &SyntaxError{Line: start, Msg: "unterminated string"}
			}
			toks = append(toks, token{text: sb.String(), quoted: true, line: start})
		case c == '(' || c == '[' || c == '{':
			end, err := scanBalanced(src, i)
			if err != nil {
				return nil, &SyntaxError{Line: line, Msg: err.Error()}
			}
			toks = append(toks, token{text: src[i:end], line: line})
			line += strings.Count(src[i:end], "\n")
			i = end
		case c == '/':
			j := i + 1
			for j < n && src[j] != '/' && src[j] != '\n' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= n || src[j] != '/' {
				return nil, &SyntaxError{Line: line, Msg: "unterminated regular expression"}
			}
			j++
			if j < n && src[j] == 'i' {
				j++
			}
			toks = append(toks, token{text: src[i:j], line: line})
			i = j
		default:
			j := i
			for j < n && !strings.ContainsRune(" \t\r\n#\"'", rune(src[j])) {
				j++
			}
			toks = append(toks, token{text: src[i:j], line: line})
			i = j
		}
	}
	return toks, nil
}

func scanBalanced(src string, i int) (int, error) {
	open := src[i]
	closeCh := map[byte]byte{'(': ')', '[': ']', '{': '}'}[open]
	depth := 0
	var quote byte
	for j := i; j < len(src); j++ {
		ch := src[j]
		if quote != 0 {
			if ch == '\\' {
				j++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return j + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced %q", string(open))
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) lastLine() int {
	if len(p.toks) == 0 {
		return 0
	}
	return p.toks[len(p.toks)-1].line
}

// Unmarshal parses mapfile text into its top-level blocks. A full mapfile
// yields one MAP object; a layer fragment yields its LAYER objects.
func Unmarshal(data []byte) ([]*Object, error) {
	toks, err := lex(string(data))
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	var out []*Object
	for {
		t, ok := p.next()
		if !ok {
			return out, nil
		}
		kw := strings.ToUpper(t.text)
		if t.quoted || !blockKeys[kw] {
			return nil, &SyntaxError{Line: t.line, Msg: fmt.Sprintf("expected block keyword, got %q", t.text)}
		}
		obj, err := p.parseBlock(kw, t.line)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
}

// sameLine collects the value tokens that follow a keyword on its line.
func (p *parser) sameLine(line int) []token {
	var vals []token
	for {
		t, ok := p.peek()
		if !ok || t.line != line {
			return vals
		}
		if !t.quoted && strings.EqualFold(t.text, "END") {
			return vals
		}
		vals = append(vals, t)
		p.pos++
	}
}

func (p *parser) parseBlock(typ string, line int) (*Object, error) {
	obj := NewObject(typ)
	for {
		t, ok := p.next()
		if !ok {
			return nil, &SyntaxError{Line: p.lastLine(), Msg: fmt.Sprintf("%s opened at line %d is not closed", typ, line)}
		}
		if t.quoted {
			return nil, &SyntaxError{Line: t.line, Msg: fmt.Sprintf("unexpected string %q in %s", t.text, typ)}
		}

		kw := strings.ToUpper(t.text)
		key := strings.ToLower(t.text)

		switch {
		case kw == "END":
			return obj, nil

		case kw == "METADATA" || kw == "VALIDATION":
			tbl, err := p.parseTable(kw, t.line)
			if err != nil {
				return nil, err
			}
			obj.Set(key, tbl)

		case kw == "CONFIG":
			vals := p.sameLine(t.line)
			if len(vals) != 2 {
				return nil, &SyntaxError{Line: t.line, Msg: "CONFIG expects a key and a value"}
			}
			tbl := obj.Table(key)
			if tbl == nil {
				tbl = NewTable()
				obj.Set(key, tbl)
			}
			tbl.Set(vals[0].text, vals[1].text)

		case kw == "PROJECTION":
			var lines Lines
			for {
				v, ok := p.next()
				if !ok {
					return nil, &SyntaxError{Line: t.line, Msg: "PROJECTION is not closed"}
				}
				if !v.quoted && strings.EqualFold(v.text, "END") {
					break
				}
				lines = append(lines, v.text)
			}
			obj.Set(key, lines)

		case kw == "POINTS" || kw == "PATTERN":
			var nums NumberBlock
			for {
				v, ok := p.next()
				if !ok {
					return nil, &SyntaxError{Line: t.line, Msg: kw + " is not closed"}
				}
				if !v.quoted && strings.EqualFold(v.text, "END") {
					break
				}
				f, err := strconv.ParseFloat(v.text, 64)
				if err != nil {
					return nil, &SyntaxError{Line: v.line, Msg: fmt.Sprintf("%s expects numbers, got %q", kw, v.text)}
				}
				nums = append(nums, f)
			}
			obj.Set(key, nums)

		case repeatedScalars[kw]:
			vals := p.sameLine(t.line)
			if len(vals) != 1 {
				return nil, &SyntaxError{Line: t.line, Msg: kw + " expects one value"}
			}
			existing, _ := obj.Get(key)
			list, _ := existing.([]string)
			obj.Set(key, append(list, vals[0].text))

		case blockKeys[kw]:
			// SYMBOL inside STYLE is a scalar reference, not a block
			if vals := p.sameLine(t.line); len(vals) > 0 {
				if err := setScalar(obj, key, vals); err != nil {
					return nil, err
				}
				continue
			}
			child, err := p.parseBlock(kw, t.line)
			if err != nil {
				return nil, err
			}
			if repeatedBlocks[kw] {
				pk := plural(kw)
				obj.Set(pk, append(obj.Objects(pk), child))
			} else {
				obj.Set(key, child)
			}

		default:
			vals := p.sameLine(t.line)
			if len(vals) == 0 {
				return nil, &SyntaxError{Line: t.line, Msg: fmt.Sprintf("%s has no value", kw)}
			}
			if err := setScalar(obj, key, vals); err != nil {
				return nil, err
			}
		}
	}
}

func (p *parser) parseTable(kw string, line int) (*Table, error) {
	tbl := NewTable()
	for {
		k, ok := p.next()
		if !ok {
			return nil, &SyntaxError{Line: line, Msg: kw + " is not closed"}
		}
		if !k.quoted && strings.EqualFold(k.text, "END") {
			return tbl, nil
		}
		v, ok := p.next()
		if !ok {
			return nil, &SyntaxError{Line: k.line, Msg: fmt.Sprintf("%s key %q has no value", kw, k.text)}
		}
		tbl.Set(k.text, v.text)
	}
}

func setScalar(obj *Object, key string, vals []token) error {
	if len(vals) == 1 {
		obj.Set(key, tokenValue(vals[0]))
		return nil
	}

	nums := make([]float64, len(vals))
	for i, v := range vals {
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil || v.quoted {
			return &SyntaxError{Line: v.line, Msg: fmt.Sprintf("%s expects a single value or numbers", strings.ToUpper(key))}
		}
		nums[i] = f
	}
	obj.Set(key, nums)
	return nil
}

func tokenValue(t token) interface{} {
	if t.quoted {
		return t.text
	}
	if _, err := strconv.ParseFloat(t.text, 64); err == nil {
		return Number(t.text)
	}
	return Keyword(t.text)
}
