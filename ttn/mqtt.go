package ttn

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
)

type MQTTConfig struct {
	// URL of the broker, e.g. tcp://eu1.cloud.thethings.network:1883
	URL    string
	AppID  string
	Tenant string
	APIKey string
}

func (c MQTTConfig) username() string {
	tenant := c.Tenant
	if tenant == "" {
		tenant = "ttn"
	}
	return c.AppID + "@" + tenant
}

// Topic returns the uplink topic for every device of the application.
func (c MQTTConfig) Topic() string {
	return fmt.Sprintf("v3/%s/devices/+/up", c.username())
}

// MQTTSource receives the uplinks of one TTN v3 application.
type MQTTSource struct {
	logger  log.Logger
	config  MQTTConfig
	handler HandlerFunc
	msgs    chan sensor.Uplink
}

func NewMQTTSource(logger log.Logger, cfg MQTTConfig, handler HandlerFunc) *MQTTSource {
	logger = log.With(logger, "component", "mqtt", "app_id", cfg.AppID)
	return &MQTTSource{
		logger:  logger,
		config:  cfg,
		handler: handler,
		msgs:    make(chan sensor.Uplink, 100),
	}
}

// Run connects, subscribes and hands uplinks to the handler until ctx is done.
func (s *MQTTSource) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.URL)
	opts.SetClientID(fmt.Sprintf("sensorbridge-%s-%d", s.config.AppID, time.Now().UnixNano()))
	opts.SetUsername(s.config.username())
	opts.SetPassword(s.config.APIKey)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		level.Warn(s.logger).Log("msg", "connection lost", "error", err)
	})
	// subscriptions are not kept by the broker across reconnections
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		level.Info(s.logger).Log("msg", "connected", "broker", s.config.URL)
		t := c.Subscribe(s.config.Topic(), 0, s.handleMsg(ctx))
		if t.Wait() && t.Error() != nil {
			level.Error(s.logger).Log("msg", "can't subscribe to uplinks", "error", t.Error())
			return
		}
		level.Info(s.logger).Log("msg", "subscribed to uplink messages", "topic", s.config.Topic())
	})

	client := mqtt.NewClient(opts)
	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return fmt.Errorf("can't connect to %s: %w", s.config.URL, t.Error())
	}
	defer client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			level.Info(s.logger).Log("msg", "unsubscribing to uplink messages")
			client.Unsubscribe(s.config.Topic()).WaitTimeout(time.Second)
			return nil
		case up := <-s.msgs:
			s.handler(ctx, up)
		}
	}
}

func (s *MQTTSource) handleMsg(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		up, err := ParseUplink(msg.Payload())
		if err != nil {
			level.Warn(s.logger).Log("msg", "can't parse uplink", "topic", msg.Topic(), "error", err)
			return
		}
		metrics.MsgReceivedCounter.WithLabelValues(metrics.ReceivedViaTTN).Inc()
		select {
		case s.msgs <- up:
		case <-ctx.Done():
		}
	}
}
