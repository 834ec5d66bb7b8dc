package ttn

import (
	"context"
	"math"

	ttnsdk "github.com/TheThingsNetwork/go-app-sdk"
	"github.com/TheThingsNetwork/ttn/core/types"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
)

type V2Config struct {
	ClientName    string
	ClientVersion string
	AppID         string
	AppAccessKey  string
}

// V2Source receives the uplinks of one TTN v2 application through the app SDK.
type V2Source struct {
	logger  log.Logger
	config  V2Config
	handler HandlerFunc
}

func NewV2Source(logger log.Logger, cfg V2Config, handler HandlerFunc) *V2Source {
	logger = log.With(logger, "component", "ttnclient", "app_id", cfg.AppID)
	return &V2Source{logger: logger, config: cfg, handler: handler}
}

func (s *V2Source) Run(ctx context.Context) error {
	config := ttnsdk.NewCommunityConfig(s.config.ClientName)
	config.ClientVersion = s.config.ClientVersion

	client := config.NewClient(s.config.AppID, s.config.AppAccessKey)
	defer client.Close()

	pubsub, err := client.PubSub()
	if err != nil {
		level.Error(s.logger).Log("msg", "can't get pub/sub", "error", err)
		return err
	}
	defer pubsub.Close()

	allDevicesPubSub := pubsub.AllDevices()
	// also stops existing subscriptions
	defer allDevicesPubSub.Close()

	msgs, err := allDevicesPubSub.SubscribeUplink()
	if err != nil {
		level.Error(s.logger).Log("msg", "can't subscribe to uplinks", "error", err)
		return err
	}
	level.Info(s.logger).Log("msg", "subscribed to uplink messages")

	for {
		select {
		case <-ctx.Done():
			level.Info(s.logger).Log("msg", "unsubscribing to uplink messages")
			if err := allDevicesPubSub.UnsubscribeUplink(); err != nil {
				level.Error(s.logger).Log("msg", "can't unsubscribe from uplinks", "error", err)
				return err
			}
			return nil
		case msg := <-msgs:
			if msg == nil {
				break
			}
			metrics.MsgReceivedCounter.WithLabelValues(metrics.ReceivedViaTTN).Inc()
			s.handler(ctx, FromV2(msg))
		}
	}
}

// FromV2 converts a TTN v2 uplink, radio metadata are taken from the gateway with the best RSSI.
func FromV2(msg *types.UplinkMessage) sensor.Uplink {
	up := sensor.NewUplink(msg.AppID, msg.DevID, int(msg.FPort), msg.PayloadRaw)
	up.Fields = msg.PayloadFields

	best := math.Inf(-1)
	for _, gw := range msg.Metadata.Gateways {
		if float64(gw.RSSI) <= best {
			continue
		}
		best = float64(gw.RSSI)
		up.RSSI = float64(gw.RSSI)
		up.SNR = float64(gw.SNR)
	}

	if sf, err := sensor.ParseDataRate(msg.Metadata.DataRate); err == nil {
		up.SF = sf
	}
	return up
}
