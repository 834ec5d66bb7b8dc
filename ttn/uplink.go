// Package ttn connects to The Things Network, it delivers uplinks and queries the device registry.
package ttn

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/akhenakh/sensorbridge/sensor"
)

// HandlerFunc receives the uplinks of a source, called from a single goroutine.
type HandlerFunc func(ctx context.Context, up sensor.Uplink)

type applicationIDs struct {
	ApplicationID string `json:"application_id"`
}

type endDeviceIDs struct {
	DeviceID       string         `json:"device_id"`
	ApplicationIDs applicationIDs `json:"application_ids"`
	DevEUI         string         `json:"dev_eui,omitempty"`
}

type rxMetadata struct {
	GatewayIDs struct {
		GatewayID string `json:"gateway_id"`
	} `json:"gateway_ids"`
	RSSI        *float64 `json:"rssi,omitempty"`
	ChannelRSSI *float64 `json:"channel_rssi,omitempty"`
	SNR         *float64 `json:"snr,omitempty"`
}

type settings struct {
	DataRate struct {
		LoRa struct {
			Bandwidth       uint32 `json:"bandwidth"`
			SpreadingFactor int    `json:"spreading_factor"`
		} `json:"lora"`
	} `json:"data_rate"`
}

type uplinkMessage struct {
	FPort          int                    `json:"f_port"`
	FCnt           uint32                 `json:"f_cnt"`
	FRMPayload     []byte                 `json:"frm_payload"`
	DecodedPayload map[string]interface{} `json:"decoded_payload,omitempty"`
	RxMetadata     []rxMetadata           `json:"rx_metadata"`
	Settings       settings               `json:"settings"`
}

// UplinkEvent is the TTN v3 uplink message as published on MQTT.
type UplinkEvent struct {
	EndDeviceIDs  endDeviceIDs  `json:"end_device_ids"`
	ReceivedAt    time.Time     `json:"received_at"`
	UplinkMessage uplinkMessage `json:"uplink_message"`
}

var ErrNoUplink = errors.New("not an uplink message")

// ParseUplink decodes a TTN v3 uplink JSON message.
func ParseUplink(b []byte) (sensor.Uplink, error) {
	var ev UplinkEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return sensor.Uplink{}, err
	}
	if ev.EndDeviceIDs.DeviceID == "" || ev.EndDeviceIDs.ApplicationIDs.ApplicationID == "" {
		return sensor.Uplink{}, ErrNoUplink
	}
	return ev.Uplink(), nil
}

// Uplink converts the event, radio metadata are taken from the gateway with the best RSSI.
func (ev *UplinkEvent) Uplink() sensor.Uplink {
	msg := ev.UplinkMessage
	up := sensor.NewUplink(ev.EndDeviceIDs.ApplicationIDs.ApplicationID, ev.EndDeviceIDs.DeviceID,
		msg.FPort, msg.FRMPayload)
	up.Fields = msg.DecodedPayload
	if !ev.ReceivedAt.IsZero() {
		up.ReceivedAt = ev.ReceivedAt
	}

	best := math.Inf(-1)
	for _, md := range msg.RxMetadata {
		rssi := md.RSSI
		if rssi == nil {
			rssi = md.ChannelRSSI
		}
		if rssi == nil || *rssi <= best {
			continue
		}
		best = *rssi
		up.RSSI = *rssi
		up.SNR = math.NaN()
		if md.SNR != nil {
			up.SNR = *md.SNR
		}
	}
	up.SF = msg.Settings.DataRate.LoRa.SpreadingFactor
	return up
}
