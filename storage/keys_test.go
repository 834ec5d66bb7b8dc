package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akhenakh/sensorbridge/sensor"
)

func TestKeys(t *testing.T) {
	ts := time.Now().UTC()
	k := "particulatematter/ulm-1"

	dk := DataKey(k, ts, 52.0, 4.7)
	ndk, nts, lat, lng, err := ReadDataKey(dk)
	require.NoError(t, err)
	require.Equal(t, k, ndk)
	require.Equal(t, ts, nts)
	require.InDelta(t, 52.0, lat, 0.0001)
	require.InDelta(t, 4.7, lng, 0.0001)

	pk := PointKey(52.0, 4.7, ts, k)
	cell, nts, npk, err := ReadPointKey(pk)
	require.NoError(t, err)
	require.Equal(t, k, npk)
	require.Equal(t, ts, nts)
	require.InDelta(t, 52.0, cell.LatLng().Lat.Degrees(), 0.0001)
	require.InDelta(t, 4.7, cell.LatLng().Lng.Degrees(), 0.0001)

	_, _, _, _, err = ReadDataKey([]byte("SBDshort"))
	require.Equal(t, ErrInvalidKey, err)
}

func TestDataKeyOrder(t *testing.T) {
	older := DataKey("k", time.Unix(100, 0), 1, 1)
	newer := DataKey("k", time.Unix(200, 0), 1, 1)
	require.True(t, string(newer) < string(older))

	// a longer key sharing a prefix must not be iterated with k
	require.NotEqual(t, DataPrefix("k"), DataKey("kk", time.Unix(200, 0), 1, 1)[:len(DataPrefix("k"))])
}

func TestRadiusCap(t *testing.T) {
	c := RadiusCap(52.0, 4.7, 1000)
	in := PointKey(52.005, 4.7, time.Now(), "in")
	out := PointKey(52.02, 4.7, time.Now(), "out")

	cin, _, _, err := ReadPointKey(in)
	require.NoError(t, err)
	require.True(t, c.ContainsPoint(cin.Point()))

	cout, _, _, err := ReadPointKey(out)
	require.NoError(t, err)
	require.False(t, c.ContainsPoint(cout.Point()))
}

func TestValue(t *testing.T) {
	d := sensor.NewData()
	d.Add(sensor.PM10, 42)
	d.Add(sensor.TEMP, 21.5)

	b, err := EncodeValue(d)
	require.NoError(t, err)

	nd, err := DecodeValue(b)
	require.NoError(t, err)
	require.Equal(t, d.String(), nd.String())

	empty, err := DecodeValue(nil)
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())
}
