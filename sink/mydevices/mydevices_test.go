package mydevices

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/sensorbridge/sensor"
)

func TestMessage(t *testing.T) {
	d := sensor.NewData()
	d.Add(sensor.PM10, 42)
	d.Add(sensor.PRESSURE, 101300)

	require.Equal(t, []Value{
		{Channel: 1, Value: 42, Type: "analog_sensor", Unit: "null"},
		{Channel: 12, Value: 1013, Type: "bp", Unit: "hpa"},
	}, Message(d))
}

func TestSinkCredentials(t *testing.T) {
	type req struct {
		path, user, pass string
		values           []Value
	}
	ch := make(chan req, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		var vs []Value
		require.NoError(t, json.NewDecoder(r.Body).Decode(&vs))
		ch <- req{path: r.URL.Path, user: user, pass: pass, values: vs}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	s := New(log.NewNopLogger(), Config{URL: ts.URL, Timeout: time.Second})
	require.NoError(t, s.Start())
	defer s.Stop()

	full := sensor.AppDeviceID{AppID: "app", DevID: "full"}
	partial := sensor.AppDeviceID{AppID: "app", DevID: "partial"}
	s.AcceptAttributes(sensor.Directory{
		full:    {AttrUsername: "u", AttrPassword: "p", AttrClientID: "c1"},
		partial: {AttrUsername: "u", AttrClientID: "c2"},
	})

	d := sensor.NewData()
	d.Add(sensor.TEMP, 20.5)
	s.AcceptRecord(partial, d)
	s.AcceptRecord(full, d)

	select {
	case r := <-ch:
		require.Equal(t, "/things/c1/data", r.path)
		require.Equal(t, "u", r.user)
		require.Equal(t, "p", r.pass)
		require.Equal(t, []Value{{Channel: 11, Value: 20.5, Type: "temp", Unit: "c"}}, r.values)
	case <-time.After(2 * time.Second):
		t.Fatal("upload not received")
	}

	select {
	case r := <-ch:
		t.Fatalf("unexpected upload %v", r)
	case <-time.After(100 * time.Millisecond):
	}
}
