package ttn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/sensorbridge/geo"
)

func TestRegistryListDevicesPaging(t *testing.T) {
	const total = 5
	var pages []int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/applications/app/devices", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "ids,attributes", r.URL.Query().Get("field_mask"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))

		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)
		pages = append(pages, page)

		var devs endDevices
		for i := (page - 1) * 2; i < page*2 && i < total; i++ {
			devs.EndDevices = append(devs.EndDevices, endDevice{
				IDs:        endDeviceIDs{DeviceID: fmt.Sprintf("dev-%d", i)},
				Attributes: map[string]string{"senscom-id": fmt.Sprintf("TTN-%d", i)},
			})
		}
		_ = json.NewEncoder(w).Encode(devs)
	}))
	defer ts.Close()

	r := NewRegistry(log.NewNopLogger(), RegistryConfig{URL: ts.URL, AppID: "app", APIKey: "secret", PageSize: 2})
	devs, err := r.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devs, total)
	require.Equal(t, []int{1, 2, 3}, pages)
	require.Equal(t, "dev-4", devs[4].DevID)
	v, ok := devs[4].Attributes.Get("senscom-id")
	require.True(t, ok)
	require.Equal(t, "TTN-4", v)
}

func TestRegistryListDevicesError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	r := NewRegistry(log.NewNopLogger(), RegistryConfig{URL: ts.URL, AppID: "app"})
	_, err := r.ListDevices(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestRegistryUpdateLocation(t *testing.T) {
	var got endDeviceUpdate
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v3/applications/app/devices/dev", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	r := NewRegistry(log.NewNopLogger(), RegistryConfig{URL: ts.URL, AppID: "app", APIKey: "k"})
	err := r.UpdateLocation(context.Background(), "dev", geo.Location{Lat: 52.0, Lon: 4.7, Alt: 3})
	require.NoError(t, err)
	require.Equal(t, []string{"locations"}, got.FieldMask.Paths)
	require.Equal(t, "dev", got.EndDevice.IDs.DeviceID)
	require.Equal(t, 52.0, got.EndDevice.Locations[LocationUser].Latitude)
	require.Equal(t, 4.7, got.EndDevice.Locations[LocationUser].Longitude)
}
