package geolocation

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.URL.Query().Get("key"))
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.ConsiderIP)
		require.Len(t, req.WifiAccessPoints, 2)
		require.Equal(t, "00:11:22:33:44:55", req.WifiAccessPoints[0].MacAddress)
		require.Equal(t, -60, req.WifiAccessPoints[0].SignalStrength)
		_, _ = w.Write([]byte(`{"location":{"lat":52.0116,"lng":4.7105},"accuracy":25.0}`))
	}))
	defer ts.Close()

	c := NewClient(log.NewNopLogger(), Config{URL: ts.URL, APIKey: "secret"})
	loc, err := c.Locate(context.Background(), []AccessPoint{
		{BSSID: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, RSSI: -60},
		{BSSID: net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}, RSSI: -80},
	})
	require.NoError(t, err)
	require.Equal(t, 52.0116, loc.Lat)
	require.Equal(t, 4.7105, loc.Lon)
}

func TestLocateNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(log.NewNopLogger(), Config{URL: ts.URL})
	_, err := c.Locate(context.Background(), nil)
	require.Equal(t, ErrNotFound, err)
}
