package ttn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/geo"
	"github.com/akhenakh/sensorbridge/sensor"
)

const (
	DefaultRegistryURL = "https://eu1.cloud.thethings.network"
	defaultPageSize    = 100

	// LocationUser is the location entry set by the user or an application
	LocationUser = "user"
)

type RegistryConfig struct {
	URL    string
	AppID  string
	APIKey string

	// PageSize devices are requested per call
	PageSize int
	Timeout  time.Duration
}

// Registry is a client of the TTN v3 end device registry for one application.
type Registry struct {
	logger log.Logger
	config RegistryConfig
	client *http.Client
}

func NewRegistry(logger log.Logger, cfg RegistryConfig) *Registry {
	logger = log.With(logger, "component", "registry", "app_id", cfg.AppID)
	if cfg.URL == "" {
		cfg.URL = DefaultRegistryURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Registry{
		logger: logger,
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type registryLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Source    string  `json:"source,omitempty"`
}

type endDevice struct {
	IDs        endDeviceIDs                `json:"ids"`
	Attributes map[string]string           `json:"attributes,omitempty"`
	Locations  map[string]registryLocation `json:"locations,omitempty"`
}

type endDevices struct {
	EndDevices []endDevice `json:"end_devices"`
}

type fieldMask struct {
	Paths []string `json:"paths"`
}

type endDeviceUpdate struct {
	EndDevice endDevice `json:"end_device"`
	FieldMask fieldMask `json:"field_mask"`
}

// ListDevices returns every device of the application, requesting pages until a short one.
func (r *Registry) ListDevices(ctx context.Context) ([]sensor.Device, error) {
	var res []sensor.Device
	for page := 1; ; page++ {
		v := url.Values{}
		v.Set("field_mask", "ids,attributes")
		v.Set("limit", strconv.Itoa(r.config.PageSize))
		v.Set("page", strconv.Itoa(page))
		u := fmt.Sprintf("%s/api/v3/applications/%s/devices?%s",
			strings.TrimRight(r.config.URL, "/"), url.PathEscape(r.config.AppID), v.Encode())

		var devs endDevices
		if err := r.do(ctx, http.MethodGet, u, nil, &devs); err != nil {
			return nil, err
		}
		for _, d := range devs.EndDevices {
			res = append(res, sensor.Device{
				DevID:      d.IDs.DeviceID,
				Attributes: sensor.AttributeMap(d.Attributes),
			})
		}
		if len(devs.EndDevices) < r.config.PageSize {
			break
		}
	}
	level.Debug(r.logger).Log("msg", "listed devices", "count", len(res))
	return res, nil
}

// UpdateLocation sets the user location of a device.
func (r *Registry) UpdateLocation(ctx context.Context, devID string, loc geo.Location) error {
	upd := endDeviceUpdate{
		EndDevice: endDevice{
			IDs: endDeviceIDs{
				DeviceID:       devID,
				ApplicationIDs: applicationIDs{ApplicationID: r.config.AppID},
			},
			Locations: map[string]registryLocation{
				LocationUser: {
					Latitude:  loc.Lat,
					Longitude: loc.Lon,
					Altitude:  loc.Alt,
					Source:    "SOURCE_REGISTRY",
				},
			},
		},
		FieldMask: fieldMask{Paths: []string{"locations"}},
	}
	b, err := json.Marshal(upd)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/api/v3/applications/%s/devices/%s",
		strings.TrimRight(r.config.URL, "/"), url.PathEscape(r.config.AppID), url.PathEscape(devID))
	if err := r.do(ctx, http.MethodPut, u, bytes.NewReader(b), nil); err != nil {
		return err
	}
	level.Info(r.logger).Log("msg", "location updated", "device_id", devID, "latitude", loc.Lat, "longitude", loc.Lon)
	return nil
}

func (r *Registry) do(ctx context.Context, method, u string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
