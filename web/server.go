// Package web serves the archive query API.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/storage"
)

const defaultHistory = 100

type Server struct {
	appName string
	logger  log.Logger
	geoDB   storage.Indexer
}

func NewServer(appName string, logger log.Logger, geoDB storage.Indexer) *Server {
	logger = log.With(logger, "component", "web")
	return &Server{
		appName: appName,
		logger:  logger,
		geoDB:   geoDB,
	}
}

// Handler returns the API routes wrapped with CORS and compression.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/devices", s.DevicesQuery)
	r.HandleFunc("/api/data/{app}/{dev}", s.DataQuery)
	r.HandleFunc("/api/rect/{urlat}/{urlng}/{bllat}/{bllng}", s.RectQuery)
	r.HandleFunc("/api/radius/{lat}/{lng}/{radius}", s.RadiusQuery)
	return handlers.CompressHandler(handlers.CORS(handlers.AllowedOrigins([]string{"*"}))(r))
}

func (s *Server) startSpan(r *http.Request, operationName string) opentracing.Span {
	wireContext, err := opentracing.GlobalTracer().Extract(
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(r.Header))
	if err != nil {
		level.Debug(s.logger).Log("msg", "can't find a span", "error", err)
	}
	return opentracing.StartSpan(operationName, ext.RPCServerOption(wireContext))
}

// DevicesQuery lists the archived device keys.
func (s *Server) DevicesQuery(w http.ResponseWriter, r *http.Request) {
	span := s.startSpan(r, "/api/devices")
	defer span.Finish()

	keys, err := s.geoDB.Keys()
	if err != nil {
		level.Error(s.logger).Log("msg", "can't query keys", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	s.writeJSON(w, keys)
}

type dataPoint struct {
	DeviceID  string       `json:"device_id"`
	Time      time.Time    `json:"time"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Data      *sensor.Data `json:"data"`
}

// DataQuery returns the recent history of a device, most recent first.
func (s *Server) DataQuery(w http.ResponseWriter, r *http.Request) {
	span := s.startSpan(r, "/api/data")
	defer span.Finish()

	vars := mux.Vars(r)
	key := sensor.AppDeviceID{AppID: vars["app"], DevID: vars["dev"]}.String()

	count := defaultHistory
	if c := r.URL.Query().Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n <= 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}

	rs, err := s.geoDB.History(key, count)
	if err != nil {
		level.Error(s.logger).Log("msg", "can't query history", "key", key, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res := make([]dataPoint, len(rs))
	for i, rec := range rs {
		res[i] = dataPoint{
			DeviceID:  rec.Key,
			Time:      rec.Time,
			Latitude:  rec.Lat,
			Longitude: rec.Lng,
			Data:      rec.Data,
		}
	}
	s.writeJSON(w, res)
}

// RectQuery returns the last position of the devices in the rect as GeoJSON.
func (s *Server) RectQuery(w http.ResponseWriter, r *http.Request) {
	span := s.startSpan(r, "/api/rect")
	defer span.Finish()

	v, ok := parseFloats(mux.Vars(r), "urlat", "urlng", "bllat", "bllng")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rs, err := s.geoDB.RectSearch(v[0], v[1], v[2], v[3])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeFeatures(w, rs)
}

// RadiusQuery returns the last position of the devices within radius meters as GeoJSON.
func (s *Server) RadiusQuery(w http.ResponseWriter, r *http.Request) {
	span := s.startSpan(r, "/api/radius")
	defer span.Finish()

	v, ok := parseFloats(mux.Vars(r), "lat", "lng", "radius")
	if !ok || v[2] <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rs, err := s.geoDB.RadiusSearch(v[0], v[1], v[2])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeFeatures(w, rs)
}

func parseFloats(vars map[string]string, names ...string) ([]float64, bool) {
	res := make([]float64, len(names))
	for i, n := range names {
		f, err := strconv.ParseFloat(vars[n], 64)
		if err != nil {
			return nil, false
		}
		res[i] = f
	}
	return res, true
}

func (s *Server) writeFeatures(w http.ResponseWriter, rs []storage.Record) {
	fc := geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, rec := range rs {
		f := &geojson.Feature{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{rec.Lng, rec.Lat}),
			Properties: make(map[string]interface{}),
		}
		f.Properties["device_id"] = rec.Key
		f.Properties["ts"] = rec.Time
		if rec.Data != nil {
			for _, item := range rec.Data.Items() {
				v, _ := rec.Data.Get(item)
				f.Properties[item.String()] = v
			}
		}
		fc.Features = append(fc.Features, f)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		level.Error(s.logger).Log("msg", "can't marshal json", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
