package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/storage"
)

type fakeIndexer struct {
	storage.Indexer
	records []storage.Record
	key     string
	count   int
	radius  []float64
}

func (f *fakeIndexer) Keys() ([]string, error) {
	return []string{"app/dev"}, nil
}

func (f *fakeIndexer) History(key string, count int) ([]storage.Record, error) {
	f.key, f.count = key, count
	return f.records, nil
}

func (f *fakeIndexer) RectSearch(urlat, urlng, bllat, bllng float64) ([]storage.Record, error) {
	return f.records, nil
}

func (f *fakeIndexer) RadiusSearch(lat, lng, radius float64) ([]storage.Record, error) {
	f.radius = []float64{lat, lng, radius}
	return f.records, nil
}

func testIndexer() *fakeIndexer {
	d := sensor.NewData()
	d.Add(sensor.PM10, 42)
	return &fakeIndexer{records: []storage.Record{
		{Key: "app/dev", Lat: 52.0, Lng: 4.7, Time: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Data: d},
	}}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDevicesQuery(t *testing.T) {
	s := NewServer("test", log.NewNopLogger(), testIndexer())
	w := get(t, s.Handler(), "/api/devices")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `["app/dev"]`, w.Body.String())
}

func TestDataQuery(t *testing.T) {
	idx := testIndexer()
	s := NewServer("test", log.NewNopLogger(), idx)
	w := get(t, s.Handler(), "/api/data/app/dev?count=5")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "app/dev", idx.key)
	require.Equal(t, 5, idx.count)

	var res []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res, 1)
	require.Equal(t, "app/dev", res[0]["device_id"])
	require.Equal(t, map[string]interface{}{"PM10": 42.0}, res[0]["data"])

	w = get(t, s.Handler(), "/api/data/app/dev?count=zero")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeoQueries(t *testing.T) {
	idx := testIndexer()
	s := NewServer("test", log.NewNopLogger(), idx)

	w := get(t, s.Handler(), "/api/rect/53/5/51/4")
	require.Equal(t, http.StatusOK, w.Code)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	require.Equal(t, []float64{4.7, 52.0}, fc.Features[0].Geometry.Coordinates)
	require.Equal(t, 42.0, fc.Features[0].Properties["PM10"])

	w = get(t, s.Handler(), "/api/radius/52/4.7/1000")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []float64{52, 4.7, 1000}, idx.radius)

	w = get(t, s.Handler(), "/api/radius/52/east/1000")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
