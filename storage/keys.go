package storage

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/akhenakh/sensorbridge/geo"
)

const (
	Prefix = "SB"

	dataMarker  = 'D'
	pointMarker = 'G'
	listMarker  = 'L'

	// separates the device key from the suffix in data keys
	keySep = 0x00
)

var (
	// MaxGeoTime helper to query into the future
	MaxGeoTime = time.Unix(0, math.MaxInt64)

	ErrInvalidKey = errors.New("invalid storage key")
)

// reversed so that iterations return the most recent entries first
func reverseTime(t time.Time) uint64 {
	return uint64(math.MaxInt64 - t.UnixNano())
}

func fromReverseTime(v uint64) time.Time {
	return time.Unix(0, math.MaxInt64-int64(v)).UTC()
}

func cellID(lat, lng float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng))
}

func marker(m byte) []byte {
	return append([]byte(Prefix), m)
}

// DataPrefix returns the prefix of every data key of k.
func DataPrefix(k string) []byte {
	b := append(marker(dataMarker), k...)
	return append(b, keySep)
}

// DataKey returns the history key of k: prefix D key 0x00 reversed time cell.
func DataKey(k string, t time.Time, lat, lng float64) []byte {
	b := DataPrefix(k)
	b = appendUint64(b, reverseTime(t))
	return appendUint64(b, uint64(cellID(lat, lng)))
}

// ReadDataKey returns key, time and position of a data key,
// the position is the center of the leaf cell, close to the stored one.
func ReadDataKey(dk []byte) (string, time.Time, float64, float64, error) {
	head := len(Prefix) + 1
	if len(dk) < head+1+16 || dk[len(dk)-17] != keySep {
		return "", time.Time{}, 0, 0, ErrInvalidKey
	}
	suffix := dk[len(dk)-16:]
	t := fromReverseTime(binary.BigEndian.Uint64(suffix[:8]))
	ll := s2.CellID(binary.BigEndian.Uint64(suffix[8:])).LatLng()
	return string(dk[head : len(dk)-17]), t, ll.Lat.Degrees(), ll.Lng.Degrees(), nil
}

// PointKey returns the geo index key: prefix G cell reversed time key.
func PointKey(lat, lng float64, t time.Time, k string) []byte {
	b := marker(pointMarker)
	b = appendUint64(b, uint64(cellID(lat, lng)))
	b = appendUint64(b, reverseTime(t))
	return append(b, k...)
}

// ReadPointKey returns cell, time and key of a geo index key.
func ReadPointKey(pk []byte) (s2.CellID, time.Time, string, error) {
	head := len(Prefix) + 1
	if len(pk) < head+16 {
		return 0, time.Time{}, "", ErrInvalidKey
	}
	c := s2.CellID(binary.BigEndian.Uint64(pk[head:]))
	t := fromReverseTime(binary.BigEndian.Uint64(pk[head+8:]))
	return c, t, string(pk[head+16:]), nil
}

// CellRange returns the geo index keys bounding every leaf of c.
func CellRange(c s2.CellID) (start, stop []byte) {
	start = appendUint64(marker(pointMarker), uint64(c.RangeMin()))
	stop = appendUint64(marker(pointMarker), uint64(c.RangeMax()))
	return start, stop
}

// ListKey returns the key used to list all device keys.
func ListKey(k string) []byte {
	return append(marker(listMarker), k...)
}

func ListPrefix() []byte {
	return marker(listMarker)
}

// RadiusCap returns the spherical cap of radius meters around lat lng.
func RadiusCap(lat, lng, radius float64) s2.Cap {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))
	return s2.CapFromCenterAngle(center, s1.Angle(radius/geo.EarthRadiusMeters))
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
