package decoder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/akhenakh/sensorbridge/sensor"
)

// JSONField maps a path in the decoded fields to an item.
type JSONField struct {
	// Path is a dot separated path, e.g. "gps_1.latitude"
	Path string
	Item sensor.Item
	// Factor applied to the value, 0 means 1
	Factor float64
}

// JSONDecoder extracts configured fields from the payload decoded upstream.
type JSONDecoder struct {
	fields []JSONField
}

func NewJSONDecoder(fields []JSONField) *JSONDecoder {
	return &JSONDecoder{fields: fields}
}

// ParseJSONFields parses a comma separated list of path=ITEM[*factor].
func ParseJSONFields(s string) ([]JSONField, error) {
	var res []JSONField
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("invalid json field mapping %q", e)
		}
		f := JSONField{Path: kv[0], Factor: 1}
		it := kv[1]
		if i := strings.IndexByte(it, '*'); i >= 0 {
			factor, err := strconv.ParseFloat(it[i+1:], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid factor in json field mapping %q: %w", e, err)
			}
			f.Factor = factor
			it = it[:i]
		}
		item, err := sensor.ParseItem(it)
		if err != nil {
			return nil, err
		}
		f.Item = item
		res = append(res, f)
	}
	return res, nil
}

// Decode extracts the configured fields, missing or non numeric fields are omitted.
func (jd *JSONDecoder) Decode(fields map[string]interface{}) (*sensor.Data, error) {
	if fields == nil {
		return nil, parseErrorf(JSON, "no decoded fields")
	}

	d := sensor.NewData()
	for _, f := range jd.fields {
		v, ok := lookup(fields, f.Path)
		if !ok {
			continue
		}
		n, ok := jsonNumber(v)
		if !ok {
			continue
		}
		factor := f.Factor
		if factor == 0 {
			factor = 1
		}
		d.Add(f.Item, n*factor)
	}
	return d, nil
}

func lookup(fields map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = fields
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func jsonNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return 0, false
	}
	return toFloat(v)
}
