package decoder

import (
	"strings"

	"github.com/akhenakh/sensorbridge/sensor"
)

// Encoding selects the decoder used for an application.
type Encoding string

const (
	// TTNUlm is the fixed 8 bytes frame used by the TTN Ulm sensors.
	TTNUlm Encoding = "ttnulm"

	// SPS30 is the port gated SPS30 frame, see SPS30Port.
	SPS30 Encoding = "sps30"

	// Cayenne is Cayenne LPP.
	Cayenne Encoding = "cayenne"

	// JSON uses the fields decoded upstream.
	JSON Encoding = "json"
)

var encodings = []Encoding{TTNUlm, SPS30, Cayenne, JSON}

// ParseEncoding returns the encoding named s.
func ParseEncoding(s string) (Encoding, error) {
	for _, e := range encodings {
		if string(e) == strings.ToLower(strings.TrimSpace(s)) {
			return e, nil
		}
	}
	return "", &UnknownEncodingError{Name: s}
}

func (e Encoding) String() string {
	return string(e)
}

// Func decodes an uplink into a record.
type Func func(up sensor.Uplink) (*sensor.Data, error)

// Set holds a decoder per encoding.
type Set struct {
	funcs map[Encoding]Func
}

// NewSet returns the decoders for every encoding, jd serves the JSON encoding.
func NewSet(jd *JSONDecoder) *Set {
	if jd == nil {
		jd = NewJSONDecoder(nil)
	}
	return &Set{
		funcs: map[Encoding]Func{
			TTNUlm:  func(up sensor.Uplink) (*sensor.Data, error) { return DecodeTTNUlm(up.Payload) },
			SPS30:   func(up sensor.Uplink) (*sensor.Data, error) { return DecodeSPS30(up.Payload) },
			Cayenne: func(up sensor.Uplink) (*sensor.Data, error) { return DecodeCayenne(up.Payload) },
			JSON:    func(up sensor.Uplink) (*sensor.Data, error) { return jd.Decode(up.Fields) },
		},
	}
}

// Get returns the decoder for e.
func (s *Set) Get(e Encoding) (Func, error) {
	f, ok := s.funcs[e]
	if !ok {
		return nil, &UnknownEncodingError{Name: string(e)}
	}
	return f, nil
}
