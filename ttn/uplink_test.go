package ttn

import (
	"math"
	"testing"

	"github.com/TheThingsNetwork/ttn/core/types"
	"github.com/stretchr/testify/require"
)

var rawUplink = `{
	"end_device_ids": {
		"device_id": "ulm-1",
		"application_ids": {"application_id": "particulatematter"},
		"dev_eui": "0004A30B001C0530"
	},
	"received_at": "2021-03-18T10:20:30.123Z",
	"uplink_message": {
		"f_port": 1,
		"f_cnt": 42,
		"frm_payload": "AaQAtAImANI=",
		"decoded_payload": {"pm10": 42},
		"rx_metadata": [
			{"gateway_ids": {"gateway_id": "gw-far"}, "rssi": -117, "snr": -3.25},
			{"gateway_ids": {"gateway_id": "gw-near"}, "rssi": -97, "channel_rssi": -97, "snr": 7.5},
			{"gateway_ids": {"gateway_id": "gw-packetbroker"}}
		],
		"settings": {"data_rate": {"lora": {"bandwidth": 125000, "spreading_factor": 9}}}
	}
}`

func TestParseUplink(t *testing.T) {
	up, err := ParseUplink([]byte(rawUplink))
	require.NoError(t, err)
	require.Equal(t, "particulatematter", up.AppID)
	require.Equal(t, "ulm-1", up.DevID)
	require.Equal(t, 1, up.Port)
	require.Equal(t, []byte{0x01, 0xa4, 0x00, 0xb4, 0x02, 0x26, 0x00, 0xd2}, up.Payload)
	require.Equal(t, -97.0, up.RSSI)
	require.Equal(t, 7.5, up.SNR)
	require.Equal(t, 9, up.SF)
	require.Equal(t, 42.0, up.Fields["pm10"])
	require.Equal(t, 2021, up.ReceivedAt.Year())
}

func TestParseUplinkNoRadio(t *testing.T) {
	up, err := ParseUplink([]byte(`{
		"end_device_ids": {"device_id": "d", "application_ids": {"application_id": "a"}},
		"uplink_message": {"f_port": 30, "frm_payload": "AAE="}
	}`))
	require.NoError(t, err)
	require.True(t, math.IsNaN(up.RSSI))
	require.True(t, math.IsNaN(up.SNR))
	require.Equal(t, 0, up.SF)
}

func TestParseUplinkInvalid(t *testing.T) {
	_, err := ParseUplink([]byte(`{"end_device_ids": {}}`))
	require.Equal(t, ErrNoUplink, err)

	_, err = ParseUplink([]byte(`not json`))
	require.Error(t, err)
}

func TestFromV2(t *testing.T) {
	msg := &types.UplinkMessage{
		AppID:      "app",
		DevID:      "dev",
		FPort:      30,
		PayloadRaw: []byte{0x01, 0x02},
	}
	msg.Metadata.DataRate = "SF7BW125"
	msg.Metadata.Gateways = []types.GatewayMetadata{
		{RSSI: -110, SNR: -2},
		{RSSI: -80, SNR: 9.5},
	}

	up := FromV2(msg)
	require.Equal(t, "app", up.AppID)
	require.Equal(t, "dev", up.DevID)
	require.Equal(t, 30, up.Port)
	require.Equal(t, -80.0, up.RSSI)
	require.Equal(t, 9.5, up.SNR)
	require.Equal(t, 7, up.SF)
}

func TestMQTTTopic(t *testing.T) {
	cfg := MQTTConfig{AppID: "particulatematter"}
	require.Equal(t, "v3/particulatematter@ttn/devices/+/up", cfg.Topic())

	cfg.Tenant = "acme"
	require.Equal(t, "v3/particulatematter@acme/devices/+/up", cfg.Topic())
}
