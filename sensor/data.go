package sensor

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// Data is a sparse measurement record, an item is present only when a finite value was supplied.
type Data struct {
	values map[Item]float64
}

func NewData() *Data {
	return &Data{values: make(map[Item]float64)}
}

// Add stores v for item, non finite values are ignored.
// It returns true when the value was stored.
func (d *Data) Add(item Item, v float64) bool {
	if !item.Valid() || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if d.values == nil {
		d.values = make(map[Item]float64)
	}
	d.values[item] = v
	return true
}

func (d *Data) Get(item Item) (float64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.values[item]
	return v, ok
}

func (d *Data) Has(item Item) bool {
	_, ok := d.Get(item)
	return ok
}

func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.values)
}

// Items returns the present items in enumeration order.
func (d *Data) Items() []Item {
	if d == nil {
		return nil
	}
	res := make([]Item, 0, len(d.values))
	for it := range d.values {
		res = append(res, it)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Merge copies every value of o into d, overriding existing ones.
func (d *Data) Merge(o *Data) {
	for _, it := range o.Items() {
		v, _ := o.Get(it)
		d.Add(it, v)
	}
}

func (d *Data) Clone() *Data {
	c := NewData()
	c.Merge(d)
	return c
}

func (d *Data) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, it := range d.Items() {
		if i > 0 {
			sb.WriteByte(',')
		}
		v, _ := d.Get(it)
		sb.WriteString(it.String())
		sb.WriteByte('=')
		sb.WriteString(formatFloat(v))
	}
	sb.WriteByte('}')
	return sb.String()
}

// MarshalJSON encodes the record as an object keyed by item names.
func (d *Data) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, d.Len())
	for _, it := range d.Items() {
		m[it.String()], _ = d.Get(it)
	}
	return json.Marshal(m)
}

func (d *Data) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d.values = make(map[Item]float64, len(m))
	for k, v := range m {
		it, err := ParseItem(k)
		if err != nil {
			return err
		}
		d.Add(it, v)
	}
	return nil
}
