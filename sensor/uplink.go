package sensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Uplink is a message received from a device, as delivered by a transport.
type Uplink struct {
	AppID   string
	DevID   string
	Port    int
	Payload []byte

	// Fields is the payload already decoded upstream, may be nil
	Fields map[string]interface{}

	// NaN when unknown
	RSSI float64
	SNR  float64
	// 0 when unknown
	SF int

	ReceivedAt time.Time
}

// NewUplink returns an Uplink with unknown radio metadata.
func NewUplink(appID, devID string, port int, payload []byte) Uplink {
	return Uplink{
		AppID:      appID,
		DevID:      devID,
		Port:       port,
		Payload:    payload,
		RSSI:       math.NaN(),
		SNR:        math.NaN(),
		ReceivedAt: time.Now(),
	}
}

func (u Uplink) Key() AppDeviceID {
	return AppDeviceID{AppID: u.AppID, DevID: u.DevID}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseDataRate returns the spreading factor of a LoRa data rate such as SF7BW125.
func ParseDataRate(datr string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(datr))
	if !strings.HasPrefix(s, "SF") {
		return 0, fmt.Errorf("invalid data rate %q", datr)
	}
	s = s[2:]
	if i := strings.Index(s, "BW"); i >= 0 {
		s = s[:i]
	}
	sf, err := strconv.Atoi(s)
	if err != nil || sf < 6 || sf > 12 {
		return 0, fmt.Errorf("invalid data rate %q", datr)
	}
	return sf, nil
}
