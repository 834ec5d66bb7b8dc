// Package gw receives uplinks directly from Semtech UDP packet forwarders, for ABP devices.
package gw

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/brocaar/lorawan"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
)

// HandlerFunc receives the decrypted uplinks, called from the listener goroutine.
type HandlerFunc func(ctx context.Context, up sensor.Uplink)

type Config struct {
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key

	// Devices maps the ABP device addresses to their ids
	Devices map[lorawan.DevAddr]sensor.AppDeviceID
}

type Server struct {
	logger  log.Logger
	config  Config
	handler HandlerFunc
	udpConn *net.UDPConn
}

func NewServer(logger log.Logger, cfg Config, handler HandlerFunc) *Server {
	logger = log.With(logger, "component", "gw")
	return &Server{
		logger:  logger,
		config:  cfg,
		handler: handler,
	}
}

// Run listens on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	serverAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		level.Error(s.logger).Log("msg", "gw server: failed to resolve", "error", err)
		return err
	}

	s.udpConn, err = net.ListenUDP("udp", serverAddr)
	if err != nil {
		level.Error(s.logger).Log("msg", "gw server: failed to listen", "error", err)
		return err
	}

	level.Info(s.logger).Log("msg", fmt.Sprintf("GW UDP server listening at %s", addr))

	go func() {
		<-ctx.Done()
		s.udpConn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, raddr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			level.Warn(s.logger).Log("msg", "error reading on the GW", "error", err)
			continue
		}
		ups, err := s.HandleUpstream(buf[:n])
		if err != nil {
			level.Warn(s.logger).Log("msg", "error handling msg received on the GW", "addr", raddr, "error", err)
			continue
		}
		for _, up := range ups {
			s.handler(ctx, up)
		}
	}
}

// HandleUpstream parses a PUSH_DATA packet and returns the uplinks of the known devices.
func (s *Server) HandleUpstream(p []byte) ([]sensor.Uplink, error) {
	if len(p) < 12 {
		return nil, errors.New("invalid packet length")
	}

	//0      | protocol version = 2
	if p[0] != 2 {
		return nil, errors.New("invalid packet protocol version")
	}

	//1-2    | random token
	token := p[1:3]

	//3      | PUSH_DATA identifier 0x00
	if p[3] != 0x00 {
		return nil, errors.New("invalid packet not a PUSH_DATA")
	}

	//4-11   | Gateway unique identifier (MAC address)
	gwID := p[4:12]

	ujson := &UpstreamJSON{}
	if err := json.Unmarshal(p[12:], ujson); err != nil {
		return nil, err
	}

	// this could be a stat packet
	if len(ujson.Rxpk) == 0 {
		return nil, nil
	}

	var ups []sensor.Uplink
	for _, rx := range ujson.Rxpk {
		rx.GwID = gwID
		rx.Token = token

		if rx.Stat == -1 {
			continue
		}

		up, err := s.decodeLora(rx)
		if err != nil {
			level.Info(s.logger).Log("msg", "can't decode uplink lora packet", "gw_id", hex.EncodeToString(gwID), "error", err)
			continue
		}
		metrics.MsgReceivedCounter.WithLabelValues(metrics.ReceivedViaGW).Inc()
		ups = append(ups, up)
	}
	return ups, nil
}

var errUnknownDevice = errors.New("unknown device address")

func (s *Server) decodeLora(rx RXPacket) (sensor.Uplink, error) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(rx.Data); err != nil {
		return sensor.Uplink{}, err
	}

	if phy.MHDR.MType != lorawan.UnconfirmedDataUp && phy.MHDR.MType != lorawan.ConfirmedDataUp {
		return sensor.Uplink{}, fmt.Errorf("unexpected message type %v", phy.MHDR.MType)
	}

	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return sensor.Uplink{}, errors.New("MACPayload expected")
	}

	id, ok := s.config.Devices[macPL.FHDR.DevAddr]
	if !ok {
		return sensor.Uplink{}, fmt.Errorf("%w %s", errUnknownDevice, macPL.FHDR.DevAddr)
	}

	ok, err := phy.ValidateUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, s.config.NwkSKey, lorawan.AES128Key{})
	if err != nil {
		return sensor.Uplink{}, err
	}
	if !ok {
		return sensor.Uplink{}, errors.New("invalid mic")
	}

	if err := phy.DecodeFOptsToMACCommands(); err != nil {
		return sensor.Uplink{}, err
	}

	if err := phy.DecryptFRMPayload(s.config.AppSKey); err != nil {
		return sensor.Uplink{}, err
	}

	var payload []byte
	if len(macPL.FRMPayload) > 0 {
		pl, ok := macPL.FRMPayload[0].(*lorawan.DataPayload)
		if !ok {
			return sensor.Uplink{}, errors.New("DataPayload expected")
		}
		payload = pl.Bytes
	}

	port := 0
	if macPL.FPort != nil {
		port = int(*macPL.FPort)
	}

	up := sensor.NewUplink(id.AppID, id.DevID, port, payload)
	up.RSSI = float64(rx.Rssi)
	up.SNR = rx.Lsnr
	if rx.Modu != "LORA" {
		up.SNR = math.NaN()
	}
	up.SF = rx.SpreadingFactor()
	if !rx.Time.IsZero() {
		up.ReceivedAt = rx.Time
	}
	return up, nil
}

// ParseDevices parses a comma separated list of devaddr=app/dev.
func ParseDevices(s string) (map[lorawan.DevAddr]sensor.AppDeviceID, error) {
	res := make(map[lorawan.DevAddr]sensor.AppDeviceID)
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid device %q, expecting devaddr=app/dev", e)
		}
		var addr lorawan.DevAddr
		if err := addr.UnmarshalText([]byte(strings.TrimSpace(kv[0]))); err != nil {
			return nil, fmt.Errorf("invalid device address %q: %w", kv[0], err)
		}
		ids := strings.SplitN(strings.TrimSpace(kv[1]), "/", 2)
		if len(ids) != 2 || ids[0] == "" || ids[1] == "" {
			return nil, fmt.Errorf("invalid device %q, expecting devaddr=app/dev", e)
		}
		res[addr] = sensor.AppDeviceID{AppID: ids[0], DevID: ids[1]}
	}
	return res, nil
}

// ParseKey parses a hex encoded AES128 session key.
func ParseKey(s string) (lorawan.AES128Key, error) {
	var key lorawan.AES128Key
	err := key.UnmarshalText([]byte(strings.TrimSpace(s)))
	return key, err
}
