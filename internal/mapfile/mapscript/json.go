package mapscript

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// tableKeys are JSON objects that become key/value tables.
var tableKeys = map[string]bool{
	"metadata":   true,
	"validation": true,
	"config":     true,
}

// FromJSON converts a mappyfile-style JSON object into an Object, keeping
// key order. The block type comes from "__type__".
func FromJSON(data []byte) (*Object, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, fmt.Errorf("expected a JSON object, got %s", res.Type)
	}
	return objectFromJSON("", res)
}

// ObjectsFromJSON converts a JSON array of blocks (symbols, classes) into
// objects of type typ when an element has no "__type__".
func ObjectsFromJSON(data []byte, typ string) ([]*Object, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	res := gjson.ParseBytes(data)
	if !res.IsArray() {
		return nil, fmt.Errorf("expected a JSON array, got %s", res.Type)
	}

	var (
		out []*Object
		err error
	)
	res.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			err = fmt.Errorf("expected %s objects in array", strings.ToUpper(typ))
			return false
		}
		var obj *Object
		obj, err = objectFromJSON(typ, v)
		if err != nil {
			return false
		}
		out = append(out, obj)
		return true
	})
	return out, err
}

func objectFromJSON(typ string, res gjson.Result) (*Object, error) {
	if t := res.Get("__type__"); t.Exists() {
		typ = t.String()
	}
	obj := NewObject(typ)

	var err error
	res.ForEach(func(k, v gjson.Result) bool {
		key := strings.ToLower(k.String())
		if key == "__type__" {
			return true
		}
		var val interface{}
		val, err = valueFromJSON(key, v)
		if err != nil {
			err = fmt.Errorf("%s.%s: %w", obj.Type, key, err)
			return false
		}
		if val != nil {
			obj.Set(key, val)
		}
		return true
	})
	return obj, err
}

func valueFromJSON(key string, v gjson.Result) (interface{}, error) {
	switch {
	case v.IsObject():
		if tableKeys[key] {
			return tableFromJSON(v), nil
		}
		return objectFromJSON(singular(key), v)

	case v.IsArray():
		return arrayFromJSON(key, v)

	case v.Type == gjson.Number:
		return Number(v.Raw), nil

	case v.Type == gjson.String:
		if key == "projection" {
			return Lines{v.String()}, nil
		}
		return v.String(), nil

	case v.Type == gjson.True:
		return true, nil

	case v.Type == gjson.False:
		return false, nil
	}
	return nil, nil
}

func arrayFromJSON(key string, v gjson.Result) (interface{}, error) {
	items := v.Array()

	if key == "projection" {
		lines := make(Lines, 0, len(items))
		for _, it := range items {
			lines = append(lines, it.String())
		}
		return lines, nil
	}

	if key == "points" || key == "pattern" {
		var nums NumberBlock
		for _, it := range items {
			if it.IsArray() {
				for _, n := range it.Array() {
					nums = append(nums, n.Float())
				}
				continue
			}
			nums = append(nums, it.Float())
		}
		return nums, nil
	}

	if len(items) == 0 {
		if _, ok := plurals[key]; ok {
			return []*Object{}, nil
		}
		return []string{}, nil
	}

	switch {
	case items[0].IsObject():
		objs := make([]*Object, 0, len(items))
		for _, it := range items {
			obj, err := objectFromJSON(singular(key), it)
			if err != nil {
				return nil, err
			}
			objs = append(objs, obj)
		}
		return objs, nil

	case items[0].Type == gjson.Number:
		nums := make([]float64, 0, len(items))
		for _, it := range items {
			nums = append(nums, it.Float())
		}
		return nums, nil
	}

	strs := make([]string, 0, len(items))
	for _, it := range items {
		strs = append(strs, it.String())
	}
	return strs, nil
}

func tableFromJSON(v gjson.Result) *Table {
	t := NewTable()
	v.ForEach(func(k, val gjson.Result) bool {
		if k.String() == "__type__" {
			return true
		}
		if val.Type == gjson.String {
			t.Set(k.String(), val.String())
		} else {
			t.Set(k.String(), val.Raw)
		}
		return true
	})
	return t
}
