// Package command handles the responses devices send on the command port.
package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/geo"
	"github.com/akhenakh/sensorbridge/geolocation"
	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/worker"
)

const (
	// CmdWifiScan is the response to a WiFi scan request
	CmdWifiScan byte = 0x01

	wifiEntrySize = 7

	DefaultMoveThreshold = 100.0
	DefaultTimeout       = 20 * time.Second

	AttrLatitude  = "latitude"
	AttrLongitude = "longitude"
)

var ErrMalformed = errors.New("malformed command response")

// Locator finds the position of a device from the access points it scanned.
type Locator interface {
	Locate(ctx context.Context, aps []geolocation.AccessPoint) (geo.Location, error)
}

// LocationUpdater records the position of a device in the registry.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, devID string, loc geo.Location) error
}

type Config struct {
	// MoveThreshold in meters, smaller moves are not recorded
	MoveThreshold float64
	Timeout       time.Duration
}

// Handler processes the command responses of one application.
type Handler struct {
	logger  log.Logger
	appID   string
	locator Locator
	updater LocationUpdater
	config  Config
	queue   *worker.Queue

	mu    sync.Mutex
	known map[string]geo.Location
}

func NewHandler(logger log.Logger, appID string, locator Locator, updater LocationUpdater, cfg Config) *Handler {
	logger = log.With(logger, "component", "command", "app_id", appID)
	if cfg.MoveThreshold <= 0 {
		cfg.MoveThreshold = DefaultMoveThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Handler{
		logger:  logger,
		appID:   appID,
		locator: locator,
		updater: updater,
		config:  cfg,
		queue:   worker.NewQueue(logger, 100),
		known:   make(map[string]geo.Location),
	}
}

func (h *Handler) Start() error {
	h.queue.Start()
	return nil
}

func (h *Handler) Stop() {
	if err := h.queue.Stop(h.config.Timeout); err != nil {
		level.Warn(h.logger).Log("msg", "pending command responses dropped", "error", err)
	}
}

// AcceptAttributes seeds the last known positions of the devices not located yet.
func (h *Handler) AcceptAttributes(dir sensor.Directory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, attrs := range dir.Application(h.appID) {
		if _, ok := h.known[k.DevID]; ok {
			continue
		}
		lat, okLat := attrs.Float(AttrLatitude)
		lng, okLng := attrs.Float(AttrLongitude)
		if okLat && okLng {
			h.known[k.DevID] = geo.Location{Lat: lat, Lon: lng}
		}
	}
}

func (h *Handler) HandleResponse(up sensor.Uplink) {
	if err := h.queue.Submit(func() { h.process(up) }); err != nil {
		level.Warn(h.logger).Log("msg", "command response dropped", "device_id", up.DevID, "error", err)
	}
}

func (h *Handler) process(up sensor.Uplink) {
	if len(up.Payload) == 0 {
		level.Warn(h.logger).Log("msg", "empty command response", "device_id", up.DevID)
		return
	}

	switch cmd := up.Payload[0]; cmd {
	case CmdWifiScan:
		aps, err := ParseWifiScan(up.Payload[1:])
		if err != nil {
			level.Warn(h.logger).Log("msg", "can't parse wifi scan", "device_id", up.DevID, "error", err)
			return
		}
		if err := h.locate(up.DevID, aps); err != nil {
			level.Warn(h.logger).Log("msg", "can't update location", "device_id", up.DevID, "error", err)
		}
	default:
		level.Warn(h.logger).Log("msg", "unknown command", "device_id", up.DevID, "command", fmt.Sprintf("%#02x", cmd))
	}
}

// ParseWifiScan parses 7 bytes entries: BSSID then signed RSSI.
func ParseWifiScan(b []byte) ([]geolocation.AccessPoint, error) {
	if len(b) == 0 || len(b)%wifiEntrySize != 0 {
		return nil, fmt.Errorf("%w: wifi scan of %d bytes", ErrMalformed, len(b))
	}
	aps := make([]geolocation.AccessPoint, 0, len(b)/wifiEntrySize)
	for i := 0; i < len(b); i += wifiEntrySize {
		bssid := make(net.HardwareAddr, 6)
		copy(bssid, b[i:i+6])
		aps = append(aps, geolocation.AccessPoint{BSSID: bssid, RSSI: int(int8(b[i+6]))})
	}
	return aps, nil
}

func (h *Handler) locate(devID string, aps []geolocation.AccessPoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	loc, err := h.locator.Locate(ctx, aps)
	if err != nil {
		return err
	}

	h.mu.Lock()
	last, ok := h.known[devID]
	h.mu.Unlock()

	if ok {
		d := geo.Distance(last, loc)
		if d < h.config.MoveThreshold {
			level.Debug(h.logger).Log("msg", "device did not move", "device_id", devID, "distance", d)
			return nil
		}
	}

	if err := h.updater.UpdateLocation(ctx, devID, loc); err != nil {
		return err
	}

	h.mu.Lock()
	h.known[devID] = loc
	h.mu.Unlock()
	level.Info(h.logger).Log("msg", "device moved", "device_id", devID, "latitude", loc.Lat, "longitude", loc.Lon)
	return nil
}
