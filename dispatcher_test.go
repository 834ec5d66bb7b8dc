package sensorbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akhenakh/cayenne"
	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/sensorbridge/decoder"
	"github.com/akhenakh/sensorbridge/sensor"
)

// PM10 42.0, PM2.5 18.0, humidity 55, temperature 21
var ulmFrame = []byte{0x01, 0xA4, 0x00, 0xB4, 0x02, 0x26, 0x00, 0xD2}

func TestDispatcherEndToEnd(t *testing.T) {
	s1 := newFakeSink("s1")
	s2 := newFakeSink("s2")
	fo := NewFanout(log.NewNopLogger(), 10, s1, s2)
	require.NoError(t, fo.Start())
	defer fo.Stop(time.Second)

	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"A": "ttnulm"},
	}, fo, nil)
	require.NoError(t, err)

	up := sensor.NewUplink("A", "D1", 1, ulmFrame)
	up.RSSI = -97
	up.SNR = 7.5
	up.SF = 9
	d.HandleUplink(context.Background(), up)

	expected := map[sensor.Item]float64{
		sensor.PM10:      42.0,
		sensor.PM2_5:     18.0,
		sensor.HUMI:      55,
		sensor.TEMP:      21,
		sensor.LORA_RSSI: -97,
		sensor.LORA_SNR:  7.5,
		sensor.LORA_SF:   9,
	}

	for _, s := range []*fakeSink{s1, s2} {
		select {
		case r := <-s.records:
			require.Equal(t, sensor.AppDeviceID{AppID: "A", DevID: "D1"}, r.key)
			require.Equal(t, len(expected), r.data.Len())
			for it, ev := range expected {
				v, ok := r.data.Get(it)
				require.True(t, ok, it.String())
				require.Equal(t, ev, v, it.String())
			}
		case <-time.After(time.Second):
			t.Fatalf("sink %s did not receive the record", s.name)
		}
	}
}

func TestDispatcherCayenneParticulateMatter(t *testing.T) {
	s := newFakeSink("s")
	fo := NewFanout(log.NewNopLogger(), 10, s)
	require.NoError(t, fo.Start())
	defer fo.Stop(time.Second)

	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"C": "cayenne"},
	}, fo, nil)
	require.NoError(t, err)

	e := cayenne.NewEncoder()
	e.AddAnalogInput(1, 12.3)
	e.AddAnalogInput(2, 5)
	e.AddAnalogInput(3, 3.2)
	e.AddAnalogInput(4, 8.7)
	d.HandleUplink(context.Background(), sensor.NewUplink("C", "D1", 1, e.Bytes()))

	expected := map[sensor.Item]float64{
		sensor.PM10:  12.3,
		sensor.PM2_5: 5,
		sensor.PM1_0: 3.2,
		sensor.PM4_0: 8.7,
	}

	r := requireRecord(t, s)
	require.Equal(t, sensor.AppDeviceID{AppID: "C", DevID: "D1"}, r.key)
	require.Equal(t, len(expected), r.data.Len())
	for it, ev := range expected {
		v, ok := r.data.Get(it)
		require.True(t, ok, it.String())
		require.InDelta(t, ev, v, 0.01, it.String())
	}
}

func TestDispatcherUnknownRadioMetadata(t *testing.T) {
	pub := &capturePublisher{}
	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"A": "ttnulm"},
	}, pub, nil)
	require.NoError(t, err)

	// NaN RSSI/SNR and SF 0 are not merged
	d.HandleUplink(context.Background(), sensor.NewUplink("A", "D1", 1, ulmFrame))
	require.Len(t, pub.got, 1)
	require.Equal(t, 4, pub.got[0].data.Len())
	require.False(t, pub.got[0].data.Has(sensor.LORA_RSSI))
	require.False(t, pub.got[0].data.Has(sensor.LORA_SNR))
	require.False(t, pub.got[0].data.Has(sensor.LORA_SF))
}

func TestDispatcherCommandPort(t *testing.T) {
	pub := &capturePublisher{}
	cmdA := newFakeCommander()
	cmdB := newFakeCommander()
	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"A": "ttnulm", "B": "cayenne"},
	}, pub, map[string]Commander{"A": cmdA, "B": cmdB})
	require.NoError(t, err)

	// a valid telemetry frame on the command port is not decoded
	up := sensor.NewUplink("A", "D1", CommandPort, ulmFrame)
	d.HandleUplink(context.Background(), up)

	require.Len(t, pub.got, 0)
	require.Len(t, cmdA.ups, 1)
	require.Len(t, cmdB.ups, 0)
	got := <-cmdA.ups
	require.Equal(t, "D1", got.DevID)

	// no commander for this application, dropped
	d.HandleUplink(context.Background(), sensor.NewUplink("C", "D1", CommandPort, ulmFrame))
	require.Len(t, pub.got, 0)
	require.Len(t, cmdA.ups, 0)
	require.Len(t, cmdB.ups, 0)
}

func TestDispatcherSPS30PortOverridesEncoding(t *testing.T) {
	pub := &capturePublisher{}
	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"A": "cayenne", "B": "json"},
	}, pub, nil)
	require.NoError(t, err)

	frame := make([]byte, 20)
	frame[1] = 0x0A // PM1.0 1.0
	for _, app := range []string{"A", "B"} {
		data, enc, err := d.Decode(sensor.NewUplink(app, "D1", decoder.SPS30Port, frame))
		require.NoError(t, err)
		require.Equal(t, decoder.SPS30, enc)
		require.Equal(t, 10, data.Len())
		v, _ := data.Get(sensor.PM1_0)
		require.Equal(t, 1.0, v)
	}
}

func TestDispatcherParseErrorDropped(t *testing.T) {
	pub := &capturePublisher{}
	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"A": "ttnulm"},
	}, pub, nil)
	require.NoError(t, err)

	_, _, err = d.Decode(sensor.NewUplink("A", "D1", 1, []byte{0x01}))
	var perr *decoder.PayloadParseError
	require.True(t, errors.As(err, &perr))

	d.HandleUplink(context.Background(), sensor.NewUplink("A", "D1", 1, []byte{0x01}))
	// unconfigured application
	d.HandleUplink(context.Background(), sensor.NewUplink("Z", "D1", 1, ulmFrame))
	require.Len(t, pub.got, 0)

	// still serving afterwards
	d.HandleUplink(context.Background(), sensor.NewUplink("A", "D1", 1, ulmFrame))
	require.Len(t, pub.got, 1)
}

func TestDispatcherJSONEncoding(t *testing.T) {
	pub := &capturePublisher{}
	d, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings:  map[string]string{"A": "json"},
		JSONFields: []decoder.JSONField{{Path: "pm10", Item: sensor.PM10}},
	}, pub, nil)
	require.NoError(t, err)

	up := sensor.NewUplink("A", "D1", 1, nil)
	up.Fields = map[string]interface{}{"pm10": 12.0, "other": 1.0}
	d.HandleUplink(context.Background(), up)
	require.Len(t, pub.got, 1)
	require.Equal(t, []sensor.Item{sensor.PM10}, pub.got[0].data.Items())
}

func TestDispatcherUnknownEncoding(t *testing.T) {
	_, err := NewDispatcher(log.NewNopLogger(), DispatcherConfig{
		Encodings: map[string]string{"A": "apeldoorn"},
	}, &capturePublisher{}, nil)
	require.Error(t, err)
	var uerr *decoder.UnknownEncodingError
	require.True(t, errors.As(err, &uerr))
}
