package sensorbridge

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/decoder"
	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
)

// CommandPort is the LoRaWAN port used for command requests and responses.
const CommandPort = 100

type DispatcherConfig struct {
	// Encodings maps application ids to encoding names
	Encodings map[string]string

	// JSONFields configures the generic JSON decoder
	JSONFields []decoder.JSONField
}

// Dispatcher decodes uplinks and forwards the records.
type Dispatcher struct {
	logger     log.Logger
	encodings  map[string]decoder.Encoding
	decoders   *decoder.Set
	publisher  Publisher
	commanders map[string]Commander
}

// NewDispatcher validates the configured encodings, an unknown one returns an UnknownEncodingError.
func NewDispatcher(logger log.Logger, cfg DispatcherConfig, publisher Publisher, commanders map[string]Commander) (*Dispatcher, error) {
	logger = log.With(logger, "component", "dispatcher")

	encodings := make(map[string]decoder.Encoding, len(cfg.Encodings))
	for appID, name := range cfg.Encodings {
		enc, err := decoder.ParseEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("application %s: %w", appID, err)
		}
		encodings[appID] = enc
	}

	if commanders == nil {
		commanders = make(map[string]Commander)
	}

	return &Dispatcher{
		logger:     logger,
		encodings:  encodings,
		decoders:   decoder.NewSet(decoder.NewJSONDecoder(cfg.JSONFields)),
		publisher:  publisher,
		commanders: commanders,
	}, nil
}

// HandleUplink routes up to the command handler or decodes and publishes it.
func (d *Dispatcher) HandleUplink(ctx context.Context, up sensor.Uplink) {
	if up.Port == CommandPort {
		metrics.CommandCounter.Inc()
		cmd, ok := d.commanders[up.AppID]
		if !ok {
			level.Debug(d.logger).Log("msg", "no command handler for application", "app_id", up.AppID)
			return
		}
		cmd.HandleResponse(up)
		return
	}

	data, enc, err := d.Decode(up)
	if err != nil {
		var perr *decoder.PayloadParseError
		if errors.As(err, &perr) {
			metrics.DecodeErrorCounter.WithLabelValues(enc.String()).Inc()
			level.Warn(d.logger).Log(
				"msg", "can't decode payload",
				"app_id", up.AppID,
				"device_id", up.DevID,
				"port", up.Port,
				"payload", fmt.Sprintf("%x", up.Payload),
				"error", err,
			)
			return
		}
		level.Warn(d.logger).Log("msg", "dropping uplink", "app_id", up.AppID, "device_id", up.DevID, "error", err)
		return
	}

	level.Debug(d.logger).Log("msg", "decoded", "app_id", up.AppID, "device_id", up.DevID, "data", data.String())
	d.publisher.Publish(up.Key(), data)
}

// Decode selects the decoder for up, decodes it and merges the radio metadata.
func (d *Dispatcher) Decode(up sensor.Uplink) (*sensor.Data, decoder.Encoding, error) {
	enc := decoder.SPS30
	if up.Port != decoder.SPS30Port {
		var ok bool
		enc, ok = d.encodings[up.AppID]
		if !ok {
			return nil, "", fmt.Errorf("no encoding configured for application %s", up.AppID)
		}
	}

	dec, err := d.decoders.Get(enc)
	if err != nil {
		return nil, enc, err
	}

	data, err := dec(up)
	if err != nil {
		return nil, enc, err
	}

	if !math.IsNaN(up.RSSI) && !math.IsInf(up.RSSI, 0) {
		data.Add(sensor.LORA_RSSI, up.RSSI)
	}
	if !math.IsNaN(up.SNR) && !math.IsInf(up.SNR, 0) {
		data.Add(sensor.LORA_SNR, up.SNR)
	}
	if up.SF > 0 {
		data.Add(sensor.LORA_SF, float64(up.SF))
	}
	return data, enc, nil
}
