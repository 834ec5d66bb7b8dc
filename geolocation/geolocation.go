// Package geolocation resolves WiFi access point scans to positions with the Google geolocation API.
package geolocation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/geo"
)

const DefaultURL = "https://www.googleapis.com/geolocation/v1/geolocate"

// ErrNotFound is returned when no position could be found for the scan.
var ErrNotFound = errors.New("location not found")

// AccessPoint is a WiFi access point seen by a device.
type AccessPoint struct {
	BSSID net.HardwareAddr
	RSSI  int
}

type wifiAccessPoint struct {
	MacAddress     string `json:"macAddress"`
	SignalStrength int    `json:"signalStrength"`
}

type request struct {
	ConsiderIP       bool              `json:"considerIp"`
	WifiAccessPoints []wifiAccessPoint `json:"wifiAccessPoints"`
}

type response struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	logger log.Logger
	config Config
	client *http.Client
}

func NewClient(logger log.Logger, cfg Config) *Client {
	logger = log.With(logger, "component", "geolocation")
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		logger: logger,
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Locate returns the position of a device that scanned aps.
func (c *Client) Locate(ctx context.Context, aps []AccessPoint) (geo.Location, error) {
	req := request{}
	for _, ap := range aps {
		req.WifiAccessPoints = append(req.WifiAccessPoints, wifiAccessPoint{
			MacAddress:     ap.BSSID.String(),
			SignalStrength: ap.RSSI,
		})
	}
	b, err := json.Marshal(req)
	if err != nil {
		return geo.Location{}, err
	}

	u := c.config.URL + "?key=" + url.QueryEscape(c.config.APIKey)
	hreq, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return geo.Location{}, err
	}
	hreq = hreq.WithContext(ctx)
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(hreq)
	if err != nil {
		return geo.Location{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return geo.Location{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		rb, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
		return geo.Location{}, fmt.Errorf("geolocation status %d: %s", resp.StatusCode, strings.TrimSpace(string(rb)))
	}

	var res response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return geo.Location{}, err
	}
	level.Debug(c.logger).Log("msg", "located", "latitude", res.Location.Lat, "longitude", res.Location.Lng, "accuracy", res.Accuracy)
	return geo.Location{Lat: res.Location.Lat, Lon: res.Location.Lng}, nil
}
