package senscom

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/sensorbridge/sensor"
)

type upload struct {
	pin, sensor string
	msg         Message
}

func testServer(t *testing.T) (*httptest.Server, chan upload) {
	ch := make(chan upload, 10)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/push-sensor-data/", r.URL.Path)
		var m Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		ch <- upload{pin: r.Header.Get("X-Pin"), sensor: r.Header.Get("X-Sensor"), msg: m}
		w.WriteHeader(http.StatusCreated)
	}))
	return ts, ch
}

func TestMessages(t *testing.T) {
	d := sensor.NewData()
	d.Add(sensor.PM10, 42)
	d.Add(sensor.PM2_5, 18)
	d.Add(sensor.TEMP, 21)
	d.Add(sensor.PRESSURE, 101300)

	pm := PMMessage(d)
	require.Equal(t, []Value{{"P1", "42.0"}, {"P2", "18.0"}}, pm.Values)

	meteo := MeteoMessage(d)
	require.Equal(t, []Value{{"temperature", "21.0"}, {"pressure", "101300"}}, meteo.Values)

	require.Nil(t, PMMessage(sensor.NewData()))
	require.Nil(t, MeteoMessage(sensor.NewData()))
}

func TestSinkUpload(t *testing.T) {
	ts, ch := testServer(t)
	defer ts.Close()

	s := New(log.NewNopLogger(), Config{URL: ts.URL, Timeout: time.Second})
	require.NoError(t, s.Start())
	defer s.Stop()

	known := sensor.AppDeviceID{AppID: "app", DevID: "dev"}
	s.AcceptAttributes(sensor.Directory{
		known: {AttrSensorID: "TTN-1234"},
		{AppID: "app", DevID: "other"}: {"opensense-id": "box"},
	})

	d := sensor.NewData()
	d.Add(sensor.PM10, 42)
	d.Add(sensor.HUMI, 55)

	// unknown device, discarded
	s.AcceptRecord(sensor.AppDeviceID{AppID: "app", DevID: "other"}, d)
	s.AcceptRecord(known, d)

	var got []upload
	for i := 0; i < 2; i++ {
		select {
		case u := <-ch:
			got = append(got, u)
		case <-time.After(2 * time.Second):
			t.Fatal("upload not received")
		}
	}
	require.Equal(t, PinPM, got[0].pin)
	require.Equal(t, "TTN-1234", got[0].sensor)
	require.Equal(t, "P1", got[0].msg.Values[0].Type)
	require.Equal(t, PinMeteo, got[1].pin)
	require.Equal(t, "humidity", got[1].msg.Values[0].Type)

	select {
	case u := <-ch:
		t.Fatalf("unexpected upload %v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSinkAttributesReplaced(t *testing.T) {
	s := New(log.NewNopLogger(), Config{})
	k := sensor.AppDeviceID{AppID: "app", DevID: "dev"}

	s.AcceptAttributes(sensor.Directory{k: {AttrSensorID: "TTN-1"}})
	id, ok := s.sensorID(k)
	require.True(t, ok)
	require.Equal(t, "TTN-1", id)

	s.AcceptAttributes(sensor.Directory{})
	_, ok = s.sensorID(k)
	require.False(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AcceptAttributes(sensor.Directory{k: {AttrSensorID: "TTN-2"}})
			s.sensorID(k)
		}()
	}
	wg.Wait()
}
