package gw

import (
	"encoding/json"
	"time"

	"github.com/akhenakh/sensorbridge/sensor"
)

// UpstreamJSON is the JSON part of a Semtech PUSH_DATA packet.
type UpstreamJSON struct {
	Rxpk []RXPacket `json:"rxpk"`
}

type RXPacket struct {
	Time time.Time `json:"time"` // UTC time of pkt RX, us precision, ISO 8601 'compact' format
	Tmst int64     `json:"tmst"` // Internal timestamp of "RX finished" event (32b unsigned)
	Freq float64   `json:"freq"` // RX central frequency in MHz
	Chan int       `json:"chan"`
	Rfch int       `json:"rfch"`
	Stat int       `json:"stat"` // CRC status: 1 = OK, -1 = fail, 0 = no CRC
	Modu string    `json:"modu"` // "LORA" or "FSK"
	// LoRa datarate identifier (eg. SF12BW500) or FSK datarate in bits per second
	Datr json.RawMessage `json:"datr"`
	Codr string          `json:"codr"`
	Rssi int             `json:"rssi"` // dBm
	Lsnr float64         `json:"lsnr"` // dB, 0.1 dB precision
	Size int             `json:"size"`
	Data []byte          `json:"data"` // Base64 encoded RF packet payload, padded

	Token []byte `json:"-"`
	GwID  []byte `json:"-"`
}

// SpreadingFactor returns the LoRa spreading factor, 0 for FSK packets.
func (p RXPacket) SpreadingFactor() int {
	var datr string
	if err := json.Unmarshal(p.Datr, &datr); err != nil {
		return 0
	}
	sf, err := sensor.ParseDataRate(datr)
	if err != nil {
		return 0
	}
	return sf
}
