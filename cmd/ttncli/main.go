package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	kitlog "github.com/go-kit/kit/log"

	"github.com/akhenakh/sensorbridge"
	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/ttn"
)

const appName = "ttncli"

var (
	appID     = flag.String("appID", "particulatematter", "The things network application ID")
	apiKey    = flag.String("apiKey", "", "The things network API key (v3) or access key (v2)")
	tenant    = flag.String("tenant", "ttn", "TTN v3 tenant")
	mqttURL   = flag.String("mqttURL", "tcp://eu1.cloud.thethings.network:1883", "TTN v3 MQTT broker")
	transport = flag.String("transport", "v3", "v3 or v2")
	encoding  = flag.String("encoding", "ttnulm", "payload encoding used to decode uplinks")
)

// printer prints the records the dispatcher would have sent to the sinks.
type printer struct{}

func (printer) Publish(key sensor.AppDeviceID, d *sensor.Data) {
	log.Println("decoded", key, d)
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

	dispatcher, err := sensorbridge.NewDispatcher(logger, sensorbridge.DispatcherConfig{
		Encodings: map[string]string{*appID: *encoding},
	}, printer{}, nil)
	if err != nil {
		log.Fatal(err)
	}

	handler := func(ctx context.Context, up sensor.Uplink) {
		log.Println("received msg", "device", up.DevID, "port", up.Port, "data", hex.EncodeToString(up.Payload),
			"rssi", up.RSSI, "snr", up.SNR, "sf", up.SF)
		dispatcher.HandleUplink(ctx, up)
	}

	var run func(ctx context.Context) error
	switch *transport {
	case "v2":
		run = ttn.NewV2Source(logger, ttn.V2Config{
			ClientName:    appName,
			ClientVersion: "1.0",
			AppID:         *appID,
			AppAccessKey:  *apiKey,
		}, handler).Run
	default:
		run = ttn.NewMQTTSource(logger, ttn.MQTTConfig{
			URL:    *mqttURL,
			AppID:  *appID,
			Tenant: *tenant,
			APIKey: *apiKey,
		}, handler).Run
	}

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	go func() {
		<-interrupt
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}
